package repository

import "time"

type ConversationStatus string

const (
	ConversationStatusRecording ConversationStatus = "recording"
	ConversationStatusStopped   ConversationStatus = "stopped"
	ConversationStatusReported  ConversationStatus = "reported"
)

type Conversation struct {
	ID        string
	Language  string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    ConversationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TranscriptSegment struct {
	ID             string
	ConversationID string
	Content        string
	SegmentIndex   int
	StartOffsetMs  int64
	EndOffsetMs    int64
	Confidence     float32
	SpokenAt       time.Time
	CreatedAt      time.Time
}

type Report struct {
	ID             string
	ConversationID string
	Kind           string
	Sections       map[string]string
	RawText        string
	GeneratedAt    time.Time
}
