package transcript

import (
	"strings"
	"sync"
	"time"
)

// Aggregator appends finalized results to the transcript and keeps the
// single replaceable trailing interim slot. It is written by one goroutine
// (the session controller) and read concurrently by the presentation layer.
type Aggregator struct {
	mu       sync.RWMutex
	finals   []Segment
	interim  *Segment
	sealed   bool
	listener Listener
}

func NewAggregator(listener Listener) *Aggregator {
	return &Aggregator{listener: listener}
}

// OnResult implements Sink. Duplicate deliveries of the same final result
// are deduplicated by conversation offset; results whose time range is
// already covered (an overlap-window re-derivation) are dropped.
func (a *Aggregator) OnResult(res Result) {
	if strings.TrimSpace(res.Text) == "" {
		return
	}

	a.mu.Lock()
	if a.sealed {
		a.mu.Unlock()
		return
	}

	if !res.Final {
		seg := Segment{
			Index:      len(a.finals),
			Text:       res.Text,
			Confidence: res.Confidence,
			Start:      res.Start,
			End:        res.End,
			SpokenAt:   time.Now(),
		}
		a.interim = &seg
		a.mu.Unlock()
		if a.listener != nil {
			a.listener.OnInterim(seg)
		}
		return
	}

	if len(a.finals) > 0 {
		last := a.finals[len(a.finals)-1]
		if res.End <= last.End {
			a.mu.Unlock()
			return
		}
		if res.Start == last.Start && res.Text == last.Text {
			a.mu.Unlock()
			return
		}
	}
	seg := Segment{
		Index:      len(a.finals),
		Text:       res.Text,
		Confidence: res.Confidence,
		Start:      res.Start,
		End:        res.End,
		SpokenAt:   time.Now(),
	}
	a.finals = append(a.finals, seg)
	a.interim = nil
	a.mu.Unlock()
	if a.listener != nil {
		a.listener.OnFinal(seg)
	}
}

// Snapshot returns a consistent copy of the current transcript.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := Snapshot{Finals: make([]Segment, len(a.finals))}
	copy(out.Finals, a.finals)
	if a.interim != nil {
		seg := *a.interim
		out.Interim = &seg
	}
	return out
}

// Finalize seals the transcript, discards any trailing interim hypothesis,
// and returns the finalized segments. Further results are ignored.
func (a *Aggregator) Finalize() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
	a.interim = nil
	out := make([]Segment, len(a.finals))
	copy(out, a.finals)
	return out
}

func (a *Aggregator) Sealed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sealed
}
