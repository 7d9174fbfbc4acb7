package audio

import (
	"strings"

	"github.com/daease/medscribe/internal/audio"
	"github.com/daease/medscribe/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.Source, error) {
		cfg := do.MustInvoke[*config.Config](i)
		// A "file:" device replays a raw PCM recording instead of capturing
		// from a microphone.
		if path, ok := strings.CutPrefix(cfg.CaptureDevice, "file:"); ok {
			return NewFileSource(path), nil
		}
		return NewFFmpegSource(cfg.FFmpegPath, cfg.CaptureDevice, cfg.SampleRateHertz), nil
	})
}
