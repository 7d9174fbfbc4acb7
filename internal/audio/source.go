package audio

import (
	"context"
	"fmt"
	"io"
)

// Source opens a raw PCM stream from a capture device. The returned reader
// yields 16-bit little-endian mono samples at the configured rate.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// DeviceError indicates the capture device is unavailable or failed
// mid-stream. It is fatal to the capture task and surfaced to the caller.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %q: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
