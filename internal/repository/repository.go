package repository

import (
	"context"
	"time"
)

type CreateConversationInput struct {
	Language  string
	StartedAt time.Time
}

type StopConversationInput struct {
	ConversationID string
	EndedAt        time.Time
}

type InsertSegmentInput struct {
	ConversationID string
	Content        string
	SegmentIndex   int
	StartOffsetMs  int64
	EndOffsetMs    int64
	Confidence     float32
	SpokenAt       time.Time
}

type InsertReportInput struct {
	ConversationID string
	Kind           string
	Sections       map[string]string
	RawText        string
	GeneratedAt    time.Time
}

type ConversationRepository interface {
	CreateConversation(ctx context.Context, input CreateConversationInput) (*Conversation, error)
	UpdateConversationStopped(ctx context.Context, input StopConversationInput) error
	MarkConversationReported(ctx context.Context, conversationID string) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	ListRunningConversations(ctx context.Context) ([]Conversation, error)
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsByConversationID(ctx context.Context, conversationID string) ([]TranscriptSegment, error)
}

type ReportRepository interface {
	InsertReport(ctx context.Context, input InsertReportInput) (*Report, error)
	ListReportsByConversationID(ctx context.Context, conversationID string) ([]Report, error)
}

type Repository interface {
	ConversationRepository
	TranscriptRepository
	ReportRepository
}
