package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/daease/medscribe/internal/audio"
)

// FFmpegSource captures microphone audio by running ffmpeg against the
// configured device and reading s16le mono PCM from its stdout.
type FFmpegSource struct {
	ffmpegPath string
	device     string
	sampleRate int
}

func NewFFmpegSource(ffmpegPath, device string, sampleRate int) audio.Source {
	return &FFmpegSource{
		ffmpegPath: ffmpegPath,
		device:     device,
		sampleRate: sampleRate,
	}
}

func (s *FFmpegSource) Open(ctx context.Context) (io.ReadCloser, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", captureFormat(),
		"-i", s.device,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-f", "s16le",
		"-",
	}
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	slog.Info("capture process started", "device", s.device, "sample_rate", s.sampleRate, "pid", cmd.Process.Pid)
	return &processReader{reader: stdout, cmd: cmd}, nil
}

func captureFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

type processReader struct {
	reader io.ReadCloser
	cmd    *exec.Cmd
}

func (r *processReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *processReader) Close() error {
	_ = r.reader.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	return r.cmd.Wait()
}
