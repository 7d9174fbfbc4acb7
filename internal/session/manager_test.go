package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daease/medscribe/internal/config"
	"github.com/daease/medscribe/internal/report"
	"github.com/daease/medscribe/internal/repository"
	"github.com/daease/medscribe/internal/transcript"
	"github.com/daease/medscribe/internal/webhook"
)

type memRepo struct {
	mu       sync.Mutex
	nextID   int
	convs    map[string]*repository.Conversation
	segments map[string][]repository.TranscriptSegment
	reports  map[string][]repository.Report
}

func newMemRepo() *memRepo {
	return &memRepo{
		convs:    map[string]*repository.Conversation{},
		segments: map[string][]repository.TranscriptSegment{},
		reports:  map[string][]repository.Report{},
	}
}

func (r *memRepo) CreateConversation(_ context.Context, input repository.CreateConversationInput) (*repository.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := &repository.Conversation{
		ID:        fmt.Sprintf("conv-%d", r.nextID),
		Language:  input.Language,
		StartedAt: input.StartedAt,
		Status:    repository.ConversationStatusRecording,
	}
	r.convs[c.ID] = c
	return copyConversation(c), nil
}

func (r *memRepo) UpdateConversationStopped(_ context.Context, input repository.StopConversationInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[input.ConversationID]
	if !ok || c.Status != repository.ConversationStatusRecording {
		return nil
	}
	endedAt := input.EndedAt
	c.EndedAt = &endedAt
	c.Status = repository.ConversationStatusStopped
	return nil
}

func (r *memRepo) MarkConversationReported(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[conversationID]; ok && c.Status == repository.ConversationStatusStopped {
		c.Status = repository.ConversationStatusReported
	}
	return nil
}

func (r *memRepo) GetConversation(_ context.Context, conversationID string) (*repository.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[conversationID]
	if !ok {
		return nil, nil
	}
	return copyConversation(c), nil
}

func (r *memRepo) ListConversations(_ context.Context) ([]repository.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Conversation
	for _, c := range r.convs {
		out = append(out, *copyConversation(c))
	}
	return out, nil
}

func (r *memRepo) ListRunningConversations(_ context.Context) ([]repository.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Conversation
	for _, c := range r.convs {
		if c.Status == repository.ConversationStatusRecording {
			out = append(out, *copyConversation(c))
		}
	}
	return out, nil
}

func (r *memRepo) InsertSegment(_ context.Context, input repository.InsertSegmentInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.segments[input.ConversationID] {
		if existing.SegmentIndex == input.SegmentIndex {
			return nil
		}
	}
	r.segments[input.ConversationID] = append(r.segments[input.ConversationID], repository.TranscriptSegment{
		ID:             fmt.Sprintf("seg-%d-%d", len(r.segments[input.ConversationID]), input.SegmentIndex),
		ConversationID: input.ConversationID,
		Content:        input.Content,
		SegmentIndex:   input.SegmentIndex,
		StartOffsetMs:  input.StartOffsetMs,
		EndOffsetMs:    input.EndOffsetMs,
		Confidence:     input.Confidence,
		SpokenAt:       input.SpokenAt,
	})
	return nil
}

func (r *memRepo) ListSegmentsByConversationID(_ context.Context, conversationID string) ([]repository.TranscriptSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]repository.TranscriptSegment, len(r.segments[conversationID]))
	copy(out, r.segments[conversationID])
	return out, nil
}

func (r *memRepo) InsertReport(_ context.Context, input repository.InsertReportInput) (*repository.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := repository.Report{
		ID:             fmt.Sprintf("report-%d", len(r.reports[input.ConversationID])+1),
		ConversationID: input.ConversationID,
		Kind:           input.Kind,
		Sections:       input.Sections,
		RawText:        input.RawText,
		GeneratedAt:    input.GeneratedAt,
	}
	r.reports[input.ConversationID] = append(r.reports[input.ConversationID], rep)
	return &rep, nil
}

func (r *memRepo) ListReportsByConversationID(_ context.Context, conversationID string) ([]repository.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]repository.Report, len(r.reports[conversationID]))
	copy(out, r.reports[conversationID])
	return out, nil
}

func copyConversation(c *repository.Conversation) *repository.Conversation {
	out := *c
	if c.EndedAt != nil {
		endedAt := *c.EndedAt
		out.EndedAt = &endedAt
	}
	return &out
}

type pcmSource struct {
	reader io.ReadCloser
}

func (s *pcmSource) Open(_ context.Context) (io.ReadCloser, error) {
	return s.reader, nil
}

type recordingSender struct {
	mu       sync.Mutex
	payloads []webhook.TranscriptWebhookPayload
}

func (s *recordingSender) SendTranscript(_ context.Context, payload webhook.TranscriptWebhookPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSender) sent() []webhook.TranscriptWebhookPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webhook.TranscriptWebhookPayload, len(s.payloads))
	copy(out, s.payloads)
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	finals   []transcript.Segment
	interims []transcript.Segment
}

func (p *recordingPublisher) PublishFinal(_ string, seg transcript.Segment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, seg)
}

func (p *recordingPublisher) PublishInterim(_ string, seg transcript.Segment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interims = append(p.interims, seg)
}

type stubReportClient struct {
	mu       sync.Mutex
	calls    int
	response string
}

func (c *stubReportClient) GenerateContent(_ context.Context, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.response, nil
}

func testManagerConfig() *config.Config {
	return &config.Config{
		Env:                        "test",
		DatabaseURL:                "postgres://localhost/test",
		GoogleCloudProjectID:       "test-project",
		GoogleCloudCredentialsJSON: "{}",
		DefaultLanguage:            "en-US",
		SampleRateHertz:            100, // 2-byte frames keep test audio tiny
		FrameDurationMs:            10,
		BufferCapacitySec:          1,
		BufferOverflow:             config.OverflowBlock,
		MaxSessionDurationSec:      10,
		DrainMargin:                0.9,
		OverlapMs:                  30,
		MaxSessionRetries:          3,
		RetryInitialBackoffMs:      1,
		RetryMaxBackoffMs:          5,
		SessionConnectTimeoutSec:   1,
		ReportModel:                "test-model",
		ReportMaxRetries:           1,
		ReportTimeoutSec:           5,
	}
}

func newTestManager(repo repository.Repository, stt *fakeTranscriber, source *pcmSource, sender webhook.Sender, client report.Client) *Manager {
	cfg := testManagerConfig()
	svc := report.NewService(report.ServiceConfig{MaxRetries: cfg.ReportMaxRetries, InitialBackoff: time.Millisecond}, client, nil)
	return NewManager(cfg, source, stt, repo, svc, sender, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestManager_StartStopLifecycle(t *testing.T) {
	repo := newMemRepo()
	stt := &fakeTranscriber{}
	sender := &recordingSender{}
	// 16 bytes of PCM at 2 bytes per frame: 8 frames then device EOF.
	source := &pcmSource{reader: io.NopCloser(bytes.NewReader(make([]byte, 16)))}
	m := newTestManager(repo, stt, source, sender, &stubReportClient{response: "## NOTES\nok"})

	conv, err := m.Start(context.Background(), "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if conv.Language != "en-US" {
		t.Fatalf("language did not default: %q", conv.Language)
	}
	if conv.Status != repository.ConversationStatusRecording {
		t.Fatalf("unexpected status: %q", conv.Status)
	}

	if _, err := m.Start(context.Background(), "ja-JP"); !errors.Is(err, ErrRecordingInProgress) {
		t.Fatalf("expected ErrRecordingInProgress, got %v", err)
	}

	// The device hits EOF after 8 frames; the final segment lands in the
	// repository before stop is even requested.
	waitFor(t, 2*time.Second, func() bool {
		segs, _ := repo.ListSegmentsByConversationID(context.Background(), conv.ID)
		return len(segs) == 1
	})

	stopped, err := m.Stop(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if stopped.Status != repository.ConversationStatusStopped {
		t.Fatalf("unexpected status after stop: %q", stopped.Status)
	}
	if stopped.EndedAt == nil {
		t.Fatal("ended_at not set")
	}

	if _, err := m.Stop(context.Background(), conv.ID); !errors.Is(err, ErrConversationNotActive) {
		t.Fatalf("expected ErrConversationNotActive on double stop, got %v", err)
	}

	payloads := sender.sent()
	if len(payloads) != 1 {
		t.Fatalf("expected one webhook delivery, got %d", len(payloads))
	}
	if payloads[0].ConversationID != conv.ID || len(payloads[0].Segments) != 1 {
		t.Fatalf("unexpected webhook payload: %+v", payloads[0])
	}
}

func TestManager_SnapshotAndLivePublish(t *testing.T) {
	repo := newMemRepo()
	stt := &fakeTranscriber{}
	pr, pw := io.Pipe()
	publisher := &recordingPublisher{}

	m := newTestManager(repo, stt, &pcmSource{reader: pr}, &recordingSender{}, &stubReportClient{response: "## NOTES\nok"})
	m.SetPublisher(publisher)

	conv, err := m.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, ok := m.Snapshot("no-such-conversation"); ok {
		t.Fatal("snapshot of unknown conversation succeeded")
	}

	if _, err := pw.Write(make([]byte, 4)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// The first forwarded frame produces an interim hypothesis.
	waitFor(t, 2*time.Second, func() bool {
		snap, ok := m.Snapshot(conv.ID)
		return ok && snap.Interim != nil
	})
	publisher.mu.Lock()
	gotInterims := len(publisher.interims)
	publisher.mu.Unlock()
	if gotInterims == 0 {
		t.Fatal("interim was not published")
	}

	_ = pw.Close()
	if _, err := m.Stop(context.Background(), conv.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	publisher.mu.Lock()
	gotFinals := len(publisher.finals)
	publisher.mu.Unlock()
	if gotFinals != 1 {
		t.Fatalf("expected one published final, got %d", gotFinals)
	}

	// Sealed conversations have no live snapshot.
	if _, ok := m.Snapshot(conv.ID); ok {
		t.Fatal("snapshot available after stop")
	}
}

func TestManager_RecoverStopsOrphanedConversations(t *testing.T) {
	repo := newMemRepo()
	orphan, err := repo.CreateConversation(context.Background(), repository.CreateConversationInput{
		Language:  "en-US",
		StartedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	m := newTestManager(repo, &fakeTranscriber{}, &pcmSource{}, &recordingSender{}, &stubReportClient{})
	if err := m.Recover(context.Background()); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	recovered, _ := repo.GetConversation(context.Background(), orphan.ID)
	if recovered.Status != repository.ConversationStatusStopped {
		t.Fatalf("orphan not stopped: %q", recovered.Status)
	}
}

func TestManager_GenerateReport(t *testing.T) {
	repo := newMemRepo()
	conv, _ := repo.CreateConversation(context.Background(), repository.CreateConversationInput{Language: "en-US", StartedAt: time.Now()})
	_ = repo.UpdateConversationStopped(context.Background(), repository.StopConversationInput{ConversationID: conv.ID, EndedAt: time.Now()})
	_ = repo.InsertSegment(context.Background(), repository.InsertSegmentInput{
		ConversationID: conv.ID, Content: "I have had a headache for two days.", SegmentIndex: 0, StartOffsetMs: 0, EndOffsetMs: 3000, SpokenAt: time.Now(),
	})

	client := &stubReportClient{response: "## CHIEF COMPLAINT\nHeadache for two days.\n\n## PLAN\nHydration and rest."}
	m := newTestManager(repo, &fakeTranscriber{}, &pcmSource{}, &recordingSender{}, client)

	stored, err := m.GenerateReport(context.Background(), conv.ID, report.KindMedicalReport)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if stored.Kind != string(report.KindMedicalReport) {
		t.Fatalf("unexpected kind: %q", stored.Kind)
	}
	if !strings.Contains(stored.Sections["Chief Complaint"], "Headache") {
		t.Fatalf("sections not parsed: %+v", stored.Sections)
	}

	updated, _ := repo.GetConversation(context.Background(), conv.ID)
	if updated.Status != repository.ConversationStatusReported {
		t.Fatalf("conversation not marked reported: %q", updated.Status)
	}

	// A second generation yields an independent report row.
	if _, err := m.GenerateReport(context.Background(), conv.ID, report.KindAssessment); err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	reports, _ := repo.ListReportsByConversationID(context.Background(), conv.ID)
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
}

func TestManager_GenerateReportGuards(t *testing.T) {
	repo := newMemRepo()
	client := &stubReportClient{response: "## NOTES\nok"}
	m := newTestManager(repo, &fakeTranscriber{}, &pcmSource{}, &recordingSender{}, client)

	if _, err := m.GenerateReport(context.Background(), "missing", report.KindMedicalReport); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	recording, _ := repo.CreateConversation(context.Background(), repository.CreateConversationInput{Language: "en-US", StartedAt: time.Now()})
	if _, err := m.GenerateReport(context.Background(), recording.ID, report.KindMedicalReport); !errors.Is(err, ErrConversationRecording) {
		t.Fatalf("expected ErrConversationRecording, got %v", err)
	}

	// A stopped conversation without any speech yields no report request.
	empty, _ := repo.CreateConversation(context.Background(), repository.CreateConversationInput{Language: "en-US", StartedAt: time.Now()})
	_ = repo.UpdateConversationStopped(context.Background(), repository.StopConversationInput{ConversationID: empty.ID, EndedAt: time.Now()})
	if _, err := m.GenerateReport(context.Background(), empty.ID, report.KindMedicalReport); !errors.Is(err, report.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("provider called %d times for empty transcript, want 0", client.calls)
	}
}
