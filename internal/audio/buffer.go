package audio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daease/medscribe/internal/config"
)

var ErrBufferClosed = errors.New("audio: frame buffer closed")

// FrameBuffer is a bounded FIFO queue decoupling the capture cadence from
// the network-send cadence. Frames come out in the order they went in,
// never duplicated. When full, Push either drops the oldest frame or
// blocks, per the configured overflow policy.
type FrameBuffer struct {
	frames  chan Frame
	policy  config.OverflowPolicy
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func NewFrameBuffer(capacity int, policy config.OverflowPolicy) *FrameBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameBuffer{
		frames: make(chan Frame, capacity),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// Push enqueues a frame. Under the drop-oldest policy it never blocks;
// under the block policy it waits for space or for Close.
func (b *FrameBuffer) Push(frame Frame) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	b.mu.Unlock()

	if b.policy == config.OverflowBlock {
		select {
		case b.frames <- frame:
			return nil
		case <-b.done:
			return ErrBufferClosed
		}
	}

	for {
		select {
		case b.frames <- frame:
			return nil
		default:
		}
		select {
		case <-b.frames:
			b.dropped.Add(1)
		default:
		}
	}
}

// PopBatch returns up to max frames in FIFO order. It blocks up to wait for
// the first frame; an expired wait yields an empty batch and no error.
// Once the buffer is closed and drained it returns io.EOF.
func (b *FrameBuffer) PopBatch(max int, wait time.Duration) ([]Frame, error) {
	if max < 1 {
		max = 1
	}

	var out []Frame
	select {
	case f := <-b.frames:
		out = append(out, f)
	default:
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case f := <-b.frames:
			out = append(out, f)
		case <-b.done:
			// Closed while waiting: a racing Push may still have landed.
			select {
			case f := <-b.frames:
				out = append(out, f)
			default:
				return nil, io.EOF
			}
		case <-timer.C:
			return nil, nil
		}
	}

	for len(out) < max {
		select {
		case f := <-b.frames:
			out = append(out, f)
		default:
			return out, nil
		}
	}
	return out, nil
}

// Close marks the end of the stream. Queued frames remain readable;
// PopBatch reports io.EOF once they are drained.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *FrameBuffer) Len() int {
	return len(b.frames)
}

// Dropped reports how many frames the drop-oldest policy has discarded.
func (b *FrameBuffer) Dropped() uint64 {
	return b.dropped.Load()
}
