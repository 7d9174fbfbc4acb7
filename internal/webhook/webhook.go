package webhook

import (
	"context"
	"time"
)

type TranscriptSegmentPayload struct {
	Index         int     `json:"index"`
	Text          string  `json:"text"`
	StartOffsetMs int64   `json:"start_offset_ms"`
	EndOffsetMs   int64   `json:"end_offset_ms"`
	Confidence    float32 `json:"confidence"`
}

// TranscriptWebhookPayload is posted once a conversation has been stopped
// and its transcript sealed.
type TranscriptWebhookPayload struct {
	ConversationID string                     `json:"conversation_id"`
	Language       string                     `json:"language"`
	StartedAt      time.Time                  `json:"started_at"`
	EndedAt        time.Time                  `json:"ended_at"`
	Text           string                     `json:"text"`
	Segments       []TranscriptSegmentPayload `json:"segments"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
