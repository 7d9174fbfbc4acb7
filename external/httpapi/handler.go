package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/daease/medscribe/internal/report"
	"github.com/daease/medscribe/internal/repository"
	"github.com/daease/medscribe/internal/session"
	"github.com/daease/medscribe/internal/transcript"
	"github.com/go-chi/chi/v5"
)

// ConversationManager is the lifecycle surface the handlers drive.
type ConversationManager interface {
	Start(ctx context.Context, language string) (*repository.Conversation, error)
	Stop(ctx context.Context, conversationID string) (*repository.Conversation, error)
	Snapshot(conversationID string) (transcript.Snapshot, bool)
	GenerateReport(ctx context.Context, conversationID string, kind report.Kind) (*repository.Report, error)
}

type Handler struct {
	manager ConversationManager
	repo    repository.Repository
	hub     *Hub
}

func NewHandler(manager ConversationManager, repo repository.Repository, hub *Hub) *Handler {
	return &Handler{manager: manager, repo: repo, hub: hub}
}

type conversationDTO struct {
	ID        string     `json:"id"`
	Language  string     `json:"language"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type segmentDTO struct {
	Index         int     `json:"index"`
	Text          string  `json:"text"`
	StartOffsetMs int64   `json:"start_offset_ms"`
	EndOffsetMs   int64   `json:"end_offset_ms"`
	Confidence    float32 `json:"confidence"`
}

type transcriptDTO struct {
	ConversationID string       `json:"conversation_id"`
	Segments       []segmentDTO `json:"segments"`
	Interim        *segmentDTO  `json:"interim,omitempty"`
}

type reportDTO struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Kind           string            `json:"kind"`
	Sections       map[string]string `json:"sections,omitempty"`
	RawText        string            `json:"raw_text"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

type errorDTO struct {
	Error string `json:"error"`
}

func toConversationDTO(c *repository.Conversation) conversationDTO {
	return conversationDTO{
		ID:        c.ID,
		Language:  c.Language,
		Status:    string(c.Status),
		StartedAt: c.StartedAt,
		EndedAt:   c.EndedAt,
	}
}

func toReportDTO(r *repository.Report) reportDTO {
	return reportDTO{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Kind:           r.Kind,
		Sections:       r.Sections,
		RawText:        r.RawText,
		GeneratedAt:    r.GeneratedAt,
	}
}

type startConversationRequest struct {
	Language string `json:"language"`
}

func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	conv, err := h.manager.Start(r.Context(), req.Language)
	if err != nil {
		if errors.Is(err, session.ErrRecordingInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeInternalError(w, "failed to start conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationDTO(conv))
}

func (h *Handler) StopConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := h.manager.Stop(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrConversationNotActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeInternalError(w, "failed to stop conversation", err)
		return
	}
	h.hub.CloseConversation(id)
	writeJSON(w, http.StatusOK, toConversationDTO(conv))
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := h.repo.GetConversation(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load conversation", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, toConversationDTO(conv))
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.repo.ListConversations(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list conversations", err)
		return
	}
	out := make([]conversationDTO, len(convs))
	for i := range convs {
		out[i] = toConversationDTO(&convs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTranscript serves the live snapshot while a conversation records and
// the persisted segments once it is sealed.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if snap, ok := h.manager.Snapshot(id); ok {
		dto := transcriptDTO{ConversationID: id, Segments: make([]segmentDTO, len(snap.Finals))}
		for i, seg := range snap.Finals {
			dto.Segments[i] = toSegmentDTO(seg)
		}
		if snap.Interim != nil {
			interim := toSegmentDTO(*snap.Interim)
			dto.Interim = &interim
		}
		writeJSON(w, http.StatusOK, dto)
		return
	}

	conv, err := h.repo.GetConversation(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load conversation", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	rows, err := h.repo.ListSegmentsByConversationID(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load transcript", err)
		return
	}
	dto := transcriptDTO{ConversationID: id, Segments: make([]segmentDTO, len(rows))}
	for i, row := range rows {
		dto.Segments[i] = segmentDTO{
			Index:         row.SegmentIndex,
			Text:          row.Content,
			StartOffsetMs: row.StartOffsetMs,
			EndOffsetMs:   row.EndOffsetMs,
			Confidence:    row.Confidence,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

func toSegmentDTO(seg transcript.Segment) segmentDTO {
	return segmentDTO{
		Index:         seg.Index,
		Text:          seg.Text,
		StartOffsetMs: seg.Start.Milliseconds(),
		EndOffsetMs:   seg.End.Milliseconds(),
		Confidence:    seg.Confidence,
	}
}

type generateReportRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req generateReportRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	kind := report.KindMedicalReport
	switch req.Kind {
	case "", string(report.KindMedicalReport):
	case string(report.KindAssessment):
		kind = report.KindAssessment
	default:
		writeError(w, http.StatusBadRequest, "unknown report kind")
		return
	}

	rep, err := h.manager.GenerateReport(r.Context(), id, kind)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, session.ErrConversationRecording):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, report.ErrInvalidInput):
			writeError(w, http.StatusUnprocessableEntity, "transcript is empty")
		default:
			writeInternalError(w, "failed to generate report", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(rep))
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reports, err := h.repo.ListReportsByConversationID(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list reports", err)
		return
	}
	out := make([]reportDTO, len(reports))
	for i := range reports {
		out[i] = toReportDTO(&reports[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) LiveTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.manager.Snapshot(id); !ok {
		writeError(w, http.StatusNotFound, "conversation is not recording")
		return
	}
	h.hub.Serve(w, r, id)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorDTO{Error: message})
}

func writeInternalError(w http.ResponseWriter, message string, err error) {
	slog.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, message)
}
