package audio

import (
	"context"
	"io"
	"os"

	"github.com/daease/medscribe/internal/audio"
)

// FileSource replays a raw s16le mono PCM file as if it were a live
// microphone. Used for transcribing uploaded recordings and in tests.
type FileSource struct {
	path string
}

func NewFileSource(path string) audio.Source {
	return &FileSource{path: path}
}

func (s *FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(s.path)
}
