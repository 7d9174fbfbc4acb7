package transcript

import "time"

// Result is a unit of recognizer output rebased onto the conversation-global
// timeline. Interim results are provisional and may be replaced; final
// results are immutable.
type Result struct {
	Text       string
	Final      bool
	Confidence float32
	Start      time.Duration
	End        time.Duration
}

// Segment is a finalized (or trailing interim) piece of the transcript.
type Segment struct {
	Index      int
	Text       string
	Confidence float32
	Start      time.Duration
	End        time.Duration
	SpokenAt   time.Time
}

// Snapshot is a consistent read-only view of the transcript: the finalized
// segments plus at most one trailing interim hypothesis.
type Snapshot struct {
	Finals  []Segment
	Interim *Segment
}

// Sink receives ordered results from the streaming session controller.
type Sink interface {
	OnResult(res Result)
}

// Listener observes transcript changes, e.g. for persistence or live display.
type Listener interface {
	OnFinal(seg Segment)
	OnInterim(seg Segment)
}
