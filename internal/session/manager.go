package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daease/medscribe/internal/audio"
	"github.com/daease/medscribe/internal/config"
	"github.com/daease/medscribe/internal/metrics"
	"github.com/daease/medscribe/internal/report"
	"github.com/daease/medscribe/internal/repository"
	"github.com/daease/medscribe/internal/transcriber"
	"github.com/daease/medscribe/internal/transcript"
	"github.com/daease/medscribe/internal/webhook"
)

var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationNotActive = errors.New("conversation is not recording")
	ErrRecordingInProgress   = errors.New("another conversation is already recording")
	ErrConversationRecording = errors.New("conversation is still recording")
)

const (
	stopDrainTimeout  = 15 * time.Second
	persistTimeout    = 5 * time.Second
	webhookTimeout    = 10 * time.Second
	recoveryStopNote  = "service restart"
)

// Publisher receives live transcript updates for connected viewers. The
// HTTP layer plugs its websocket hub in here.
type Publisher interface {
	PublishInterim(conversationID string, seg transcript.Segment)
	PublishFinal(conversationID string, seg transcript.Segment)
}

// Manager owns the lifecycle of conversations: it wires a capture loop and
// a streaming controller per recording, persists finalized segments, seals
// the transcript on stop and hands sealed transcripts to report generation.
// The capture device is exclusive, so at most one conversation records at
// a time.
type Manager struct {
	cfg       *config.Config
	source    audio.Source
	stt       transcriber.Transcriber
	repo      repository.Repository
	reports   *report.Service
	sender    webhook.Sender
	metrics   *metrics.Metrics
	publisher Publisher

	mu    sync.Mutex
	convs map[string]*conversation
}

type conversation struct {
	id        string
	language  string
	startedAt time.Time

	buffer *audio.FrameBuffer
	agg    *transcript.Aggregator

	// captureCancel stops the device read; the controller then drains the
	// buffer to end-of-stream on its own. hardCancel tears everything down.
	captureCancel context.CancelFunc
	hardCancel    context.CancelFunc

	captureDone chan struct{}
	streamDone  chan struct{}
	captureErr  error
	streamErr   error

	stopOnce sync.Once
}

func NewManager(cfg *config.Config, source audio.Source, stt transcriber.Transcriber, repo repository.Repository, reports *report.Service, sender webhook.Sender, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		source:  source,
		stt:     stt,
		repo:    repo,
		reports: reports,
		sender:  sender,
		metrics: m,
		convs:   make(map[string]*conversation),
	}
}

// SetPublisher must be called before the first conversation starts.
func (m *Manager) SetPublisher(p Publisher) {
	m.publisher = p
}

// Recover marks conversations left in recording state by an unclean
// shutdown as stopped. Their persisted segments remain available.
func (m *Manager) Recover(ctx context.Context) error {
	running, err := m.repo.ListRunningConversations(ctx)
	if err != nil {
		return fmt.Errorf("list running conversations: %w", err)
	}
	for _, c := range running {
		slog.Warn("recovering orphaned recording conversation", "conversation_id", c.ID, "started_at", c.StartedAt, "reason", recoveryStopNote)
		if err := m.repo.UpdateConversationStopped(ctx, repository.StopConversationInput{
			ConversationID: c.ID,
			EndedAt:        time.Now(),
		}); err != nil {
			return fmt.Errorf("stop orphaned conversation %s: %w", c.ID, err)
		}
	}
	return nil
}

// Start creates a conversation and begins capturing and transcribing.
// The language defaults to the configured one when empty.
func (m *Manager) Start(ctx context.Context, language string) (*repository.Conversation, error) {
	if language == "" {
		language = m.cfg.DefaultLanguage
	}

	m.mu.Lock()
	if len(m.convs) > 0 {
		m.mu.Unlock()
		return nil, ErrRecordingInProgress
	}
	m.mu.Unlock()

	rec, err := m.repo.CreateConversation(ctx, repository.CreateConversationInput{
		Language:  language,
		StartedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	buffer := audio.NewFrameBuffer(m.cfg.BufferCapacityFrames(), m.cfg.BufferOverflow)
	conv := &conversation{
		id:          rec.ID,
		language:    language,
		startedAt:   rec.StartedAt,
		buffer:      buffer,
		captureDone: make(chan struct{}),
		streamDone:  make(chan struct{}),
	}
	conv.agg = transcript.NewAggregator(&segmentRecorder{manager: m, conversationID: rec.ID})

	runCtx, hardCancel := context.WithCancel(context.Background())
	captureCtx, captureCancel := context.WithCancel(runCtx)
	conv.hardCancel = hardCancel
	conv.captureCancel = captureCancel

	m.mu.Lock()
	if len(m.convs) > 0 {
		m.mu.Unlock()
		hardCancel()
		buffer.Close()
		return nil, ErrRecordingInProgress
	}
	m.convs[rec.ID] = conv
	m.mu.Unlock()

	capturer := audio.NewCapturer(m.source, buffer, m.cfg.CaptureDevice, m.cfg.FrameBytes())
	controller := NewController(ControllerConfig{
		ConversationID: rec.ID,
		Language:       language,
		FrameDuration:  m.cfg.FrameDuration(),
		DrainThreshold: m.cfg.DrainThreshold(),
		Overlap:        m.cfg.Overlap(),
		MaxRetries:     m.cfg.MaxSessionRetries,
		InitialBackoff: m.cfg.RetryInitialBackoff(),
		MaxBackoff:     m.cfg.RetryMaxBackoff(),
		ConnectTimeout: m.cfg.SessionConnectTimeout(),
	}, m.stt, buffer, conv.agg, m.metrics)

	go func() {
		defer close(conv.captureDone)
		if err := capturer.Run(captureCtx); err != nil {
			conv.captureErr = err
			var devErr *audio.DeviceError
			if errors.As(err, &devErr) {
				slog.Error("audio capture failed", "conversation_id", rec.ID, "device", devErr.Device, "error", devErr.Err)
			} else {
				slog.Error("audio capture failed", "conversation_id", rec.ID, "error", err)
			}
		}
	}()
	go func() {
		defer close(conv.streamDone)
		if err := controller.Run(runCtx); err != nil {
			conv.streamErr = err
			slog.Error("streaming transcription failed", "conversation_id", rec.ID, "error", err)
		}
	}()

	if m.metrics != nil {
		m.metrics.ActiveConversations.Inc()
	}
	slog.Info("conversation started", "conversation_id", rec.ID, "language", language)
	return rec, nil
}

// Stop ends capture, drains the streaming pipeline, seals the transcript
// and persists the stopped conversation. Stopping a conversation that is
// not recording returns ErrConversationNotActive.
func (m *Manager) Stop(ctx context.Context, conversationID string) (*repository.Conversation, error) {
	m.mu.Lock()
	conv, ok := m.convs[conversationID]
	if ok {
		delete(m.convs, conversationID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrConversationNotActive
	}

	var stopErr error
	conv.stopOnce.Do(func() {
		stopErr = m.finalize(ctx, conv)
	})
	if stopErr != nil {
		return nil, stopErr
	}
	return m.repo.GetConversation(ctx, conversationID)
}

func (m *Manager) finalize(ctx context.Context, conv *conversation) error {
	// Stopping capture closes the buffer once the device loop exits; the
	// controller then sees end-of-stream and drains its last session.
	conv.captureCancel()

	select {
	case <-conv.streamDone:
	case <-time.After(stopDrainTimeout):
		slog.Warn("streaming drain timed out on stop; forcing teardown", "conversation_id", conv.id)
		conv.hardCancel()
		<-conv.streamDone
	case <-ctx.Done():
		conv.hardCancel()
		<-conv.streamDone
	}
	<-conv.captureDone
	conv.hardCancel()

	segments := conv.agg.Finalize()
	endedAt := time.Now()

	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.repo.UpdateConversationStopped(persistCtx, repository.StopConversationInput{
		ConversationID: conv.id,
		EndedAt:        endedAt,
	}); err != nil {
		return fmt.Errorf("persist stop: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ActiveConversations.Dec()
	}
	slog.Info("conversation stopped", "conversation_id", conv.id, "segments", len(segments), "stream_error", conv.streamErr, "capture_error", conv.captureErr)

	m.deliverWebhook(conv, segments, endedAt)
	return nil
}

func (m *Manager) deliverWebhook(conv *conversation, segments []transcript.Segment, endedAt time.Time) {
	if m.sender == nil {
		return
	}
	payload := webhook.TranscriptWebhookPayload{
		ConversationID: conv.id,
		Language:       conv.language,
		StartedAt:      conv.startedAt,
		EndedAt:        endedAt,
		Text:           string(transcript.FormatText(conv.id, conv.language, conv.startedAt, endedAt, segments)),
	}
	for _, seg := range segments {
		payload.Segments = append(payload.Segments, webhook.TranscriptSegmentPayload{
			Index:         seg.Index,
			Text:          seg.Text,
			StartOffsetMs: seg.Start.Milliseconds(),
			EndOffsetMs:   seg.End.Milliseconds(),
			Confidence:    seg.Confidence,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()
	if err := m.sender.SendTranscript(ctx, payload); err != nil {
		slog.Error("failed to deliver transcript webhook", "conversation_id", conv.id, "error", err)
	}
}

// Snapshot returns the live transcript of a recording conversation.
func (m *Manager) Snapshot(conversationID string) (transcript.Snapshot, bool) {
	m.mu.Lock()
	conv, ok := m.convs[conversationID]
	m.mu.Unlock()
	if !ok {
		return transcript.Snapshot{}, false
	}
	return conv.agg.Snapshot(), true
}

// GenerateReport produces a report from a stopped conversation's sealed
// transcript and stores it. Each call yields an independent report row.
func (m *Manager) GenerateReport(ctx context.Context, conversationID string, kind report.Kind) (*repository.Report, error) {
	rec, err := m.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrConversationNotFound
	}
	if rec.Status == repository.ConversationStatusRecording {
		return nil, ErrConversationRecording
	}

	rows, err := m.repo.ListSegmentsByConversationID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	segments := make([]transcript.Segment, len(rows))
	for i, row := range rows {
		segments[i] = transcript.Segment{
			Index:      row.SegmentIndex,
			Text:       row.Content,
			Confidence: row.Confidence,
			Start:      time.Duration(row.StartOffsetMs) * time.Millisecond,
			End:        time.Duration(row.EndOffsetMs) * time.Millisecond,
			SpokenAt:   row.SpokenAt,
		}
	}

	genCtx := ctx
	if timeout := m.cfg.ReportTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	generated, err := m.reports.Generate(genCtx, transcript.PlainText(segments), kind)
	if err != nil {
		return nil, err
	}

	stored, err := m.repo.InsertReport(ctx, repository.InsertReportInput{
		ConversationID: conversationID,
		Kind:           string(generated.Kind),
		Sections:       generated.Sections,
		RawText:        generated.RawText,
		GeneratedAt:    generated.GeneratedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	if err := m.repo.MarkConversationReported(ctx, conversationID); err != nil {
		slog.Warn("failed to mark conversation reported", "conversation_id", conversationID, "error", err)
	}
	slog.Info("report generated", "conversation_id", conversationID, "kind", generated.Kind, "report_id", stored.ID)
	return stored, nil
}

// Shutdown stops any conversation still recording.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.convs))
	for id := range m.convs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if _, err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrConversationNotActive) {
			slog.Error("failed to stop conversation during shutdown", "conversation_id", id, "error", err)
		}
	}
}

// segmentRecorder persists finalized segments as they arrive and fans live
// updates out to the publisher.
type segmentRecorder struct {
	manager        *Manager
	conversationID string
}

func (r *segmentRecorder) OnFinal(seg transcript.Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.manager.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		ConversationID: r.conversationID,
		Content:        seg.Text,
		SegmentIndex:   seg.Index,
		StartOffsetMs:  seg.Start.Milliseconds(),
		EndOffsetMs:    seg.End.Milliseconds(),
		Confidence:     seg.Confidence,
		SpokenAt:       seg.SpokenAt,
	}); err != nil {
		slog.Error("failed to persist transcript segment", "conversation_id", r.conversationID, "segment_index", seg.Index, "error", err)
	}
	if p := r.manager.publisher; p != nil {
		p.PublishFinal(r.conversationID, seg)
	}
}

func (r *segmentRecorder) OnInterim(seg transcript.Segment) {
	if p := r.manager.publisher; p != nil {
		p.PublishInterim(r.conversationID, seg)
	}
}
