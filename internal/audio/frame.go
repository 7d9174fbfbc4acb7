package audio

import "time"

// Frame is a fixed-size block of 16-bit mono PCM samples. Frames are
// immutable once produced; Seq is assigned by the capture loop and is
// strictly monotonic within one conversation.
type Frame struct {
	Seq        uint64
	PCM        []byte
	CapturedAt time.Time
}
