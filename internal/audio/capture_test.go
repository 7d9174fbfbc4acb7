package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/daease/medscribe/internal/config"
)

type readerSource struct {
	reader io.ReadCloser
	err    error
}

func (s *readerSource) Open(_ context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.reader, nil
}

type failingReader struct{}

func (f *failingReader) Read(_ []byte) (int, error) { return 0, errors.New("device disappeared") }
func (f *failingReader) Close() error               { return nil }

func TestCapturerRun_FramesStreamAndClosesBufferOnEOF(t *testing.T) {
	pcm := make([]byte, 640*3)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	src := &readerSource{reader: io.NopCloser(bytes.NewReader(pcm))}
	buf := NewFrameBuffer(8, config.OverflowDropOldest)
	c := NewCapturer(src, buf, "default", 640)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	batch, err := buf.PopBatch(8, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(batch))
	}
	for i, f := range batch {
		if f.Seq != uint64(i) {
			t.Fatalf("frame %d has seq %d", i, f.Seq)
		}
		if len(f.PCM) != 640 {
			t.Fatalf("frame %d has %d bytes", i, len(f.PCM))
		}
	}
	if _, err := buf.PopBatch(1, 10*time.Millisecond); err != io.EOF {
		t.Fatalf("expected end-of-stream after capture finished, got %v", err)
	}
}

func TestCapturerRun_OpenFailureIsDeviceError(t *testing.T) {
	src := &readerSource{err: errors.New("no such device")}
	buf := NewFrameBuffer(8, config.OverflowDropOldest)
	c := NewCapturer(src, buf, "hw:1", 640)

	err := c.Run(context.Background())
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Device != "hw:1" {
		t.Fatalf("unexpected device in error: %q", devErr.Device)
	}
}

func TestCapturerRun_MidStreamFailureIsDeviceError(t *testing.T) {
	src := &readerSource{reader: &failingReader{}}
	buf := NewFrameBuffer(8, config.OverflowDropOldest)
	c := NewCapturer(src, buf, "default", 640)

	err := c.Run(context.Background())
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
}

func TestCapturerRun_StopsOnContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	src := &readerSource{reader: r}
	buf := NewFrameBuffer(8, config.OverflowDropOldest)
	c := NewCapturer(src, buf, "default", 640)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	// Cancel closes the pipe reader via reader.Close, unblocking ReadFull.
	r.CloseWithError(context.Canceled)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("capturer did not stop on cancel")
	}
}
