package transcriber

import (
	"context"
	"time"
)

// Result is one unit of output from a streaming session. Offsets are local
// to the session that produced the result; the session controller rebases
// them onto the conversation timeline.
type Result struct {
	Text       string
	Final      bool
	Confidence float32
	Start      time.Duration
	End        time.Duration
}

// Session is one bounded-duration streaming connection to the recognizer.
type Session interface {
	// Send forwards a block of PCM audio to the provider.
	Send(pcm []byte) error
	// CloseSend stops the audio stream and asks the provider to finalize
	// any trailing hypothesis. Results stays open until the provider has
	// flushed everything.
	CloseSend() error
	// Results delivers interim and final results; the channel is closed
	// when the session ends.
	Results() <-chan Result
	// Err reports the terminal session error once Results is closed. A
	// provider-side duration-limit close is expected and reports nil.
	Err() error
}

type Transcriber interface {
	StartSession(ctx context.Context, language string) (Session, error)
}
