package httpapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/daease/medscribe/internal/transcript"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout    = 5 * time.Second
	wsSendBufferSize  = 64
	wsReadSizeLimit   = 512
)

// LiveEvent is one transcript update pushed to websocket viewers.
type LiveEvent struct {
	Type           string  `json:"type"` // "interim" or "final"
	ConversationID string  `json:"conversation_id"`
	Index          int     `json:"index"`
	Text           string  `json:"text"`
	StartOffsetMs  int64   `json:"start_offset_ms"`
	EndOffsetMs    int64   `json:"end_offset_ms"`
	Confidence     float32 `json:"confidence"`
}

// Hub fans live transcript updates out to the websocket viewers of each
// conversation. Viewers that cannot keep up are disconnected rather than
// allowed to stall the pipeline.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[string]map[*viewer]struct{}
}

type viewer struct {
	conn *websocket.Conn
	send chan LiveEvent
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The UI is served from the same origin in production; the
			// development frontend runs on a different port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		viewers: make(map[string]map[*viewer]struct{}),
	}
}

// Serve upgrades the request and streams live events for one conversation
// until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, conversationID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "conversation_id", conversationID, "error", err)
		return
	}
	v := &viewer{conn: conn, send: make(chan LiveEvent, wsSendBufferSize)}

	h.mu.Lock()
	if h.viewers[conversationID] == nil {
		h.viewers[conversationID] = make(map[*viewer]struct{})
	}
	h.viewers[conversationID][v] = struct{}{}
	h.mu.Unlock()
	slog.Info("live viewer connected", "conversation_id", conversationID)

	go h.writePump(conversationID, v)
	h.readPump(conversationID, v)
}

func (h *Hub) readPump(conversationID string, v *viewer) {
	v.conn.SetReadLimit(wsReadSizeLimit)
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			h.remove(conversationID, v)
			return
		}
	}
}

func (h *Hub) writePump(conversationID string, v *viewer) {
	for ev := range v.send {
		_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := v.conn.WriteJSON(ev); err != nil {
			h.remove(conversationID, v)
			return
		}
	}
	_ = v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = v.conn.Close()
}

func (h *Hub) remove(conversationID string, v *viewer) {
	h.mu.Lock()
	set, ok := h.viewers[conversationID]
	if ok {
		if _, present := set[v]; present {
			delete(set, v)
			close(v.send)
		}
		if len(set) == 0 {
			delete(h.viewers, conversationID)
		}
	}
	h.mu.Unlock()
	_ = v.conn.Close()
}

// CloseConversation disconnects every viewer of a conversation, typically
// after it has been stopped.
func (h *Hub) CloseConversation(conversationID string) {
	h.mu.Lock()
	set := h.viewers[conversationID]
	delete(h.viewers, conversationID)
	h.mu.Unlock()
	for v := range set {
		close(v.send)
	}
}

// PublishFinal implements session.Publisher.
func (h *Hub) PublishFinal(conversationID string, seg transcript.Segment) {
	h.publish(conversationID, "final", seg)
}

// PublishInterim implements session.Publisher.
func (h *Hub) PublishInterim(conversationID string, seg transcript.Segment) {
	h.publish(conversationID, "interim", seg)
}

func (h *Hub) publish(conversationID, eventType string, seg transcript.Segment) {
	ev := LiveEvent{
		Type:           eventType,
		ConversationID: conversationID,
		Index:          seg.Index,
		Text:           seg.Text,
		StartOffsetMs:  seg.Start.Milliseconds(),
		EndOffsetMs:    seg.End.Milliseconds(),
		Confidence:     seg.Confidence,
	}

	var slow []*viewer
	h.mu.Lock()
	for v := range h.viewers[conversationID] {
		select {
		case v.send <- ev:
		default:
			slow = append(slow, v)
		}
	}
	h.mu.Unlock()
	for _, v := range slow {
		slog.Warn("disconnecting slow live viewer", "conversation_id", conversationID)
		h.remove(conversationID, v)
	}
}
