package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/daease/medscribe/internal/audio"
	"github.com/daease/medscribe/internal/metrics"
	"github.com/daease/medscribe/internal/transcriber"
	"github.com/daease/medscribe/internal/transcript"
)

// State of one bounded streaming session.
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateDraining State = "draining"
	StateClosed   State = "closed"
	StateFailed   State = "failed"
)

// FatalStreamingError is surfaced once the consecutive-failure cap is
// exhausted. The transcript committed so far remains intact.
type FatalStreamingError struct {
	Attempts int
	Err      error
}

func (e *FatalStreamingError) Error() string {
	return fmt.Sprintf("streaming failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FatalStreamingError) Unwrap() error {
	return e.Err
}

type ControllerConfig struct {
	ConversationID string
	Language       string
	FrameDuration  time.Duration
	// DrainThreshold is the cumulative audio duration after which a session
	// proactively drains, staying clear of the provider's hard limit.
	DrainThreshold time.Duration
	// Overlap is how much recently-sent audio is re-sent to a successor
	// session so it can re-derive the tail utterance.
	Overlap        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration
	BatchSize      int
	PopWait        time.Duration
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.PopWait <= 0 {
		c.PopWait = 100 * time.Millisecond
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 10 * time.Second
	}
	return c
}

// Controller owns one conversation's streaming transcription. It multiplexes
// frames from the buffer into successive bounded recognizer sessions and
// emits every result rebased onto the conversation-global timeline, in
// ascending order: a successor session never emits before its predecessor
// has been fully flushed.
type Controller struct {
	cfg     ControllerConfig
	stt     transcriber.Transcriber
	buffer  *audio.FrameBuffer
	sink    transcript.Sink
	metrics *metrics.Metrics

	// nextOffset is the conversation offset of the next fresh frame.
	nextOffset time.Duration
	sessionSeq int
}

func NewController(cfg ControllerConfig, stt transcriber.Transcriber, buffer *audio.FrameBuffer, sink transcript.Sink, m *metrics.Metrics) *Controller {
	return &Controller{
		cfg:     cfg.withDefaults(),
		stt:     stt,
		buffer:  buffer,
		sink:    sink,
		metrics: m,
	}
}

// timedFrame pairs a captured frame with its conversation-global offset.
type timedFrame struct {
	frame  audio.Frame
	offset time.Duration
}

type sessionOutcome struct {
	state       State
	endOfStream bool
	// resume holds the frames the successor session must (re)send, oldest
	// first: the overlap tail plus anything popped but never delivered.
	resume []timedFrame
	err    error
}

// Run consumes the frame buffer until it is closed and drained (a stop) or
// the context is canceled. Session rotation and transient failures are
// handled internally; only retry exhaustion returns an error.
func (c *Controller) Run(ctx context.Context) error {
	var resume []timedFrame
	attempts := 0
	backoff := c.cfg.InitialBackoff

	for {
		out := c.runSession(ctx, resume)
		if out.state == StateClosed {
			attempts = 0
			backoff = c.cfg.InitialBackoff
			if out.endOfStream {
				slog.Info("streaming finished", "conversation_id", c.cfg.ConversationID, "sessions", c.sessionSeq)
				return nil
			}
			if c.metrics != nil {
				c.metrics.SessionRotations.Inc()
			}
			slog.Info("rotating streaming session", "conversation_id", c.cfg.ConversationID, "session_seq", c.sessionSeq, "overlap_frames", len(out.resume))
			resume = out.resume
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
		if c.metrics != nil {
			c.metrics.SessionFailures.Inc()
		}
		attempts++
		if attempts > c.cfg.MaxRetries {
			slog.Error("streaming retries exhausted", "conversation_id", c.cfg.ConversationID, "attempts", attempts, "error", out.err)
			return &FatalStreamingError{Attempts: attempts, Err: out.err}
		}
		slog.Warn("streaming session failed; retrying", "conversation_id", c.cfg.ConversationID, "attempt", attempts, "backoff", backoff, "error", out.err)
		if c.metrics != nil {
			c.metrics.SessionRetries.Inc()
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
		resume = out.resume
	}
}

func (c *Controller) runSession(ctx context.Context, resume []timedFrame) sessionOutcome {
	c.sessionSeq++
	seq := c.sessionSeq
	state := StateStarting
	slog.Info("streaming session starting", "conversation_id", c.cfg.ConversationID, "session_seq", seq, "state", state)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := c.startSession(sessCtx, cancel)
	if err != nil {
		return sessionOutcome{state: StateFailed, resume: resume, err: fmt.Errorf("session handshake: %w", err)}
	}
	if c.metrics != nil {
		c.metrics.SessionsStarted.Inc()
	}

	// base is the conversation offset of the first byte this session hears.
	base := c.nextOffset
	if len(resume) > 0 {
		base = resume[0].offset
	}

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for r := range sess.Results() {
			if c.metrics != nil {
				if r.Final {
					c.metrics.FinalResults.Inc()
				} else {
					c.metrics.InterimResults.Inc()
				}
			}
			c.sink.OnResult(transcript.Result{
				Text:       r.Text,
				Final:      r.Final,
				Confidence: r.Confidence,
				Start:      base + r.Start,
				End:        base + r.End,
			})
		}
	}()

	ring := newOverlapRing(c.cfg.Overlap, c.cfg.FrameDuration)
	var sent time.Duration

	fail := func(err error, unsent []timedFrame) sessionOutcome {
		cancel()
		<-recvDone
		return sessionOutcome{state: StateFailed, resume: append(ring.frames(), unsent...), err: err}
	}

	// sendFrames forwards frames in order, tracking the overlap ring and the
	// drain threshold. It returns the frames left unsent and whether the
	// session must now drain.
	sendFrames := func(frames []timedFrame) (unsent []timedFrame, drain bool, err error) {
		for i, tf := range frames {
			if sendErr := sess.Send(tf.frame.PCM); sendErr != nil {
				return frames[i:], false, sendErr
			}
			ring.push(tf)
			sent += c.cfg.FrameDuration
			if sent >= c.cfg.DrainThreshold {
				return frames[i+1:], true, nil
			}
		}
		return nil, false, nil
	}

	finish := func(state State, endOfStream bool, carry []timedFrame) sessionOutcome {
		slog.Debug("streaming session draining", "conversation_id", c.cfg.ConversationID, "session_seq", seq, "state", StateDraining)
		if err := sess.CloseSend(); err != nil {
			return fail(fmt.Errorf("drain session: %w", err), carry)
		}
		select {
		case <-recvDone:
		case <-time.After(c.cfg.DrainTimeout):
			return fail(fmt.Errorf("session drain timed out after %v", c.cfg.DrainTimeout), carry)
		}
		if err := sess.Err(); err != nil {
			return sessionOutcome{state: StateFailed, resume: append(ring.frames(), carry...), err: err}
		}
		if c.metrics != nil {
			c.metrics.SessionDuration.Observe(sent.Seconds())
		}
		slog.Info("streaming session closed", "conversation_id", c.cfg.ConversationID, "session_seq", seq, "audio_sent", sent, "end_of_stream", endOfStream)
		return sessionOutcome{state: state, endOfStream: endOfStream, resume: append(ring.frames(), carry...)}
	}

	// Re-send the overlap window from the previous session first so the new
	// session can re-derive the tail utterance that was lost mid-hypothesis.
	if unsent, drain, err := sendFrames(resume); err != nil {
		return fail(fmt.Errorf("resend overlap: %w", err), unsent)
	} else if drain {
		return finish(StateClosed, false, unsent)
	}

	state = StateActive
	slog.Debug("streaming session active", "conversation_id", c.cfg.ConversationID, "session_seq", seq, "state", state)

	for {
		batch, err := c.buffer.PopBatch(c.cfg.BatchSize, c.cfg.PopWait)
		if err == io.EOF {
			// Capture stopped and every frame has been forwarded: drain the
			// session one last time and do not start a successor.
			return finish(StateClosed, true, nil)
		}
		if ctx.Err() != nil {
			return finish(StateClosed, true, nil)
		}
		if len(batch) == 0 {
			continue
		}

		frames := make([]timedFrame, len(batch))
		for i, f := range batch {
			frames[i] = timedFrame{frame: f, offset: c.nextOffset}
			c.nextOffset += c.cfg.FrameDuration
		}
		unsent, drain, err := sendFrames(frames)
		if err != nil {
			return fail(fmt.Errorf("send audio: %w", err), unsent)
		}
		if drain {
			return finish(StateClosed, false, unsent)
		}
	}
}

// startSession applies the connect timeout to the provider handshake.
func (c *Controller) startSession(ctx context.Context, cancel context.CancelFunc) (transcriber.Session, error) {
	type startResult struct {
		sess transcriber.Session
		err  error
	}
	ch := make(chan startResult, 1)
	go func() {
		sess, err := c.stt.StartSession(ctx, c.cfg.Language)
		ch <- startResult{sess: sess, err: err}
	}()
	select {
	case r := <-ch:
		return r.sess, r.err
	case <-time.After(c.cfg.ConnectTimeout):
		cancel()
		r := <-ch
		if r.err == nil && r.sess != nil {
			_ = r.sess.CloseSend()
		}
		return nil, fmt.Errorf("connect timed out after %v", c.cfg.ConnectTimeout)
	}
}

// overlapRing keeps the most recently sent frames covering the configured
// overlap window.
type overlapRing struct {
	capacity int
	buf      []timedFrame
}

func newOverlapRing(overlap, frameDuration time.Duration) *overlapRing {
	capacity := 0
	if overlap > 0 && frameDuration > 0 {
		capacity = int((overlap + frameDuration - 1) / frameDuration)
	}
	return &overlapRing{capacity: capacity}
}

func (r *overlapRing) push(tf timedFrame) {
	if r.capacity == 0 {
		return
	}
	r.buf = append(r.buf, tf)
	if len(r.buf) > r.capacity {
		r.buf = r.buf[len(r.buf)-r.capacity:]
	}
}

// frames returns a copy of the ring contents, oldest first.
func (r *overlapRing) frames() []timedFrame {
	out := make([]timedFrame, len(r.buf))
	copy(out, r.buf)
	return out
}
