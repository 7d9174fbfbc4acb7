package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daease/medscribe/internal/report"
	"github.com/daease/medscribe/internal/repository"
	"github.com/daease/medscribe/internal/session"
	"github.com/daease/medscribe/internal/transcript"
	"github.com/gorilla/websocket"
)

type fakeManager struct {
	active    map[string]transcript.Snapshot
	started   *repository.Conversation
	startErr  error
	stopped   *repository.Conversation
	stopErr   error
	report    *repository.Report
	reportErr error
	gotKind   report.Kind
}

func (m *fakeManager) Start(_ context.Context, _ string) (*repository.Conversation, error) {
	return m.started, m.startErr
}

func (m *fakeManager) Stop(_ context.Context, _ string) (*repository.Conversation, error) {
	return m.stopped, m.stopErr
}

func (m *fakeManager) Snapshot(conversationID string) (transcript.Snapshot, bool) {
	snap, ok := m.active[conversationID]
	return snap, ok
}

func (m *fakeManager) GenerateReport(_ context.Context, _ string, kind report.Kind) (*repository.Report, error) {
	m.gotKind = kind
	return m.report, m.reportErr
}

type fakeRepo struct {
	repository.Repository // panics on anything not overridden

	conversations map[string]*repository.Conversation
	segments      map[string][]repository.TranscriptSegment
	reports       map[string][]repository.Report
}

func (r *fakeRepo) GetConversation(_ context.Context, id string) (*repository.Conversation, error) {
	return r.conversations[id], nil
}

func (r *fakeRepo) ListConversations(_ context.Context) ([]repository.Conversation, error) {
	var out []repository.Conversation
	for _, c := range r.conversations {
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeRepo) ListSegmentsByConversationID(_ context.Context, id string) ([]repository.TranscriptSegment, error) {
	return r.segments[id], nil
}

func (r *fakeRepo) ListReportsByConversationID(_ context.Context, id string) ([]repository.Report, error) {
	return r.reports[id], nil
}

func newTestServer(manager *fakeManager, repo *fakeRepo) (*httptest.Server, *Hub) {
	hub := NewHub()
	server := httptest.NewServer(NewRouter(NewHandler(manager, repo, hub)))
	return server, hub
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestStartConversation(t *testing.T) {
	manager := &fakeManager{started: &repository.Conversation{
		ID: "conv-1", Language: "en-US", Status: repository.ConversationStatusRecording, StartedAt: time.Now(),
	}}
	server, _ := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/conversations", "application/json", strings.NewReader(`{"language":"en-US"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var dto conversationDTO
	decodeBody(t, resp, &dto)
	if dto.ID != "conv-1" || dto.Status != "recording" {
		t.Fatalf("unexpected body: %+v", dto)
	}
}

func TestStartConversation_DeviceBusy(t *testing.T) {
	manager := &fakeManager{startErr: session.ErrRecordingInProgress}
	server, _ := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/conversations", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestStopConversation_NotActive(t *testing.T) {
	manager := &fakeManager{stopErr: session.ErrConversationNotActive}
	server, _ := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/conversations/conv-1/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	server, _ := newTestServer(&fakeManager{}, &fakeRepo{conversations: map[string]*repository.Conversation{}})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/conversations/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestGetTranscript_LiveSnapshot(t *testing.T) {
	interim := transcript.Segment{Index: 1, Text: "and my throat", Start: 4 * time.Second, End: 5 * time.Second}
	manager := &fakeManager{active: map[string]transcript.Snapshot{
		"conv-1": {
			Finals:  []transcript.Segment{{Index: 0, Text: "My head hurts", Start: 0, End: 3 * time.Second, Confidence: 0.9}},
			Interim: &interim,
		},
	}}
	server, _ := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/conversations/conv-1/transcript")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var dto transcriptDTO
	decodeBody(t, resp, &dto)
	if len(dto.Segments) != 1 || dto.Segments[0].Text != "My head hurts" {
		t.Fatalf("unexpected segments: %+v", dto.Segments)
	}
	if dto.Segments[0].EndOffsetMs != 3000 {
		t.Fatalf("unexpected offset: %d", dto.Segments[0].EndOffsetMs)
	}
	if dto.Interim == nil || dto.Interim.Text != "and my throat" {
		t.Fatalf("unexpected interim: %+v", dto.Interim)
	}
}

func TestGetTranscript_PersistedAfterStop(t *testing.T) {
	repo := &fakeRepo{
		conversations: map[string]*repository.Conversation{
			"conv-1": {ID: "conv-1", Status: repository.ConversationStatusStopped},
		},
		segments: map[string][]repository.TranscriptSegment{
			"conv-1": {{SegmentIndex: 0, Content: "My head hurts", StartOffsetMs: 0, EndOffsetMs: 3000}},
		},
	}
	server, _ := newTestServer(&fakeManager{}, repo)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/conversations/conv-1/transcript")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var dto transcriptDTO
	decodeBody(t, resp, &dto)
	if len(dto.Segments) != 1 || dto.Segments[0].Text != "My head hurts" {
		t.Fatalf("unexpected segments: %+v", dto.Segments)
	}
	if dto.Interim != nil {
		t.Fatal("sealed transcript must not carry an interim")
	}
}

func TestGenerateReport(t *testing.T) {
	manager := &fakeManager{report: &repository.Report{
		ID: "report-1", ConversationID: "conv-1", Kind: string(report.KindMedicalReport),
		Sections: map[string]string{"Chief Complaint": "Headache"}, GeneratedAt: time.Now(),
	}}
	server, _ := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/conversations/conv-1/report", "application/json", strings.NewReader(`{"kind":"medical_report"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var dto reportDTO
	decodeBody(t, resp, &dto)
	if dto.ID != "report-1" || dto.Sections["Chief Complaint"] != "Headache" {
		t.Fatalf("unexpected body: %+v", dto)
	}
	if manager.gotKind != report.KindMedicalReport {
		t.Fatalf("unexpected kind passed through: %q", manager.gotKind)
	}
}

func TestGenerateReport_UnknownKind(t *testing.T) {
	server, _ := newTestServer(&fakeManager{}, &fakeRepo{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/conversations/conv-1/report", "application/json", strings.NewReader(`{"kind":"billing"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestGenerateReport_EmptyTranscript(t *testing.T) {
	manager := &fakeManager{reportErr: report.ErrInvalidInput}
	server, _ := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/conversations/conv-1/report", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestLiveTranscript_PushesEvents(t *testing.T) {
	manager := &fakeManager{active: map[string]transcript.Snapshot{"conv-1": {}}}
	server, hub := newTestServer(manager, &fakeRepo{})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/conversations/conv-1/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	// The hub registers viewers synchronously during the upgrade, but give
	// the server goroutine a moment before publishing.
	deadline := time.Now().Add(2 * time.Second)
	seg := transcript.Segment{Index: 0, Text: "My head hurts", Start: 0, End: 3 * time.Second, Confidence: 0.9}
	var ev LiveEvent
	for {
		hub.PublishFinal("conv-1", seg)
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if err := conn.ReadJSON(&ev); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no live event received")
		}
	}
	if ev.Type != "final" || ev.Text != "My head hurts" || ev.EndOffsetMs != 3000 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestLiveTranscript_NotRecording(t *testing.T) {
	server, _ := newTestServer(&fakeManager{}, &fakeRepo{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/conversations/conv-1/live")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}
