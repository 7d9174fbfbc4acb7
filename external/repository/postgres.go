package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daease/medscribe/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, input repository.CreateConversationInput) (*repository.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, language, started_at, status)
		 VALUES ($1, $2, $3, 'recording')
		 RETURNING id, language, started_at, ended_at, status`,
		uuid.NewString(), input.Language, input.StartedAt)
	return scanConversation(row)
}

func (r *PostgresRepository) UpdateConversationStopped(ctx context.Context, input repository.StopConversationInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET status = 'stopped', ended_at = $2 WHERE id = $1 AND status = 'recording'`,
		input.ConversationID, input.EndedAt)
	return err
}

func (r *PostgresRepository) MarkConversationReported(ctx context.Context, conversationID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET status = 'reported' WHERE id = $1 AND status = 'stopped'`,
		conversationID)
	return err
}

func (r *PostgresRepository) GetConversation(ctx context.Context, conversationID string) (*repository.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, language, started_at, ended_at, status
		 FROM conversations WHERE id = $1`,
		conversationID)
	c, err := scanConversation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) ListConversations(ctx context.Context) ([]repository.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, language, started_at, ended_at, status
		 FROM conversations ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

func (r *PostgresRepository) ListRunningConversations(ctx context.Context) ([]repository.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, language, started_at, ended_at, status
		 FROM conversations WHERE status = 'recording' ORDER BY started_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_segments (conversation_id, content, segment_index, start_offset_ms, end_offset_ms, confidence, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (conversation_id, segment_index) DO NOTHING`,
		input.ConversationID, input.Content, input.SegmentIndex, input.StartOffsetMs, input.EndOffsetMs, input.Confidence, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListSegmentsByConversationID(ctx context.Context, conversationID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, content, segment_index, start_offset_ms, end_offset_ms, confidence, spoken_at, created_at
		 FROM transcript_segments WHERE conversation_id = $1 ORDER BY segment_index ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.ConversationID, &seg.Content, &seg.SegmentIndex, &seg.StartOffsetMs, &seg.EndOffsetMs, &seg.Confidence, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertReport(ctx context.Context, input repository.InsertReportInput) (*repository.Report, error) {
	sectionsJSON, err := json.Marshal(input.Sections)
	if err != nil {
		return nil, fmt.Errorf("marshal report sections: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO reports (conversation_id, kind, sections, raw_text, generated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, conversation_id, kind, sections, raw_text, generated_at`,
		input.ConversationID, input.Kind, sectionsJSON, input.RawText, input.GeneratedAt)
	return scanReport(row)
}

func (r *PostgresRepository) ListReportsByConversationID(ctx context.Context, conversationID string) ([]repository.Report, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, kind, sections, raw_text, generated_at
		 FROM reports WHERE conversation_id = $1 ORDER BY generated_at DESC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rep)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*repository.Conversation, error) {
	var c repository.Conversation
	var endedAt *time.Time
	if err := row.Scan(&c.ID, &c.Language, &c.StartedAt, &endedAt, &c.Status); err != nil {
		return nil, err
	}
	c.EndedAt = endedAt
	return &c, nil
}

func collectConversations(rows pgx.Rows) ([]repository.Conversation, error) {
	var list []repository.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func scanReport(row rowScanner) (*repository.Report, error) {
	var rep repository.Report
	var sectionsJSON []byte
	if err := row.Scan(&rep.ID, &rep.ConversationID, &rep.Kind, &sectionsJSON, &rep.RawText, &rep.GeneratedAt); err != nil {
		return nil, err
	}
	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &rep.Sections); err != nil {
			return nil, fmt.Errorf("unmarshal report sections: %w", err)
		}
	}
	return &rep, nil
}
