package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Capturer pulls fixed-size PCM frames from a Source and pushes them into a
// FrameBuffer. It is the producer half of the capture/network task pair and
// never blocks on network I/O.
type Capturer struct {
	source     Source
	buffer     *FrameBuffer
	device     string
	frameBytes int
}

func NewCapturer(source Source, buffer *FrameBuffer, device string, frameBytes int) *Capturer {
	return &Capturer{
		source:     source,
		buffer:     buffer,
		device:     device,
		frameBytes: frameBytes,
	}
}

// Run reads frames until the context is canceled or the source ends. The
// buffer is always closed on return so the consumer observes end-of-stream.
// A device failure is returned as *DeviceError.
func (c *Capturer) Run(ctx context.Context) error {
	defer c.buffer.Close()

	reader, err := c.source.Open(ctx)
	if err != nil {
		return &DeviceError{Device: c.device, Err: err}
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close capture source", "device", c.device, "error", err)
		}
	}()

	var seq uint64
	for {
		if ctx.Err() != nil {
			return nil
		}
		pcm := make([]byte, c.frameBytes)
		if _, err := io.ReadFull(reader, pcm); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				return nil
			}
			return &DeviceError{Device: c.device, Err: err}
		}
		frame := Frame{Seq: seq, PCM: pcm, CapturedAt: time.Now()}
		seq++
		if err := c.buffer.Push(frame); err != nil {
			// Buffer closed by the consumer; recording is over.
			return nil
		}
	}
}
