package report

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/daease/medscribe/internal/metrics"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ServiceConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

type Service struct {
	cfg     ServiceConfig
	client  Client
	metrics *metrics.Metrics
}

func NewService(cfg ServiceConfig, client Client, m *metrics.Metrics) *Service {
	return &Service{cfg: cfg.withDefaults(), client: client, metrics: m}
}

// Generate produces a report of the requested kind from a transcript.
// Empty or whitespace-only transcripts are rejected with ErrInvalidInput
// before any provider call. Transient provider failures are retried with
// exponential backoff; once retries are exhausted the last cause is
// returned wrapped in a GenerationError and no partial report is kept.
func (s *Service) Generate(ctx context.Context, transcript string, kind Kind) (*MedicalReport, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrInvalidInput
	}
	if s.metrics != nil {
		s.metrics.ReportRequests.Inc()
	}

	prompt := buildPrompt(kind, transcript)
	begin := time.Now()
	backoff := s.cfg.InitialBackoff

	var lastErr error
	attempt := 0
	for attempt < s.cfg.MaxRetries {
		attempt++
		raw, err := s.client.GenerateContent(ctx, prompt)
		if err == nil && strings.TrimSpace(raw) == "" {
			err = errors.New("provider returned empty response")
		}
		if err == nil {
			if s.metrics != nil {
				s.metrics.ReportDuration.Observe(time.Since(begin).Seconds())
			}
			rep := &MedicalReport{
				Kind:        kind,
				RawText:     raw,
				GeneratedAt: time.Now(),
			}
			if kind == KindMedicalReport {
				rep.Sections = parseSections(raw)
			}
			return rep, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == s.cfg.MaxRetries {
			break
		}
		slog.Warn("report generation attempt failed, retrying",
			"attempt", attempt, "backoff", backoff, "error", err)
		if s.metrics != nil {
			s.metrics.ReportRetries.Inc()
		}
		select {
		case <-ctx.Done():
			if s.metrics != nil {
				s.metrics.ReportFailures.Inc()
			}
			return nil, &GenerationError{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}

	if s.metrics != nil {
		s.metrics.ReportFailures.Inc()
	}
	return nil, &GenerationError{Attempts: attempt, Err: lastErr}
}

// isRetryable reports whether a provider error is worth another attempt.
// Quota, availability and server-side errors are transient; everything
// else, including cancellation, fails immediately.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		default:
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "503", "rate limit", "timeout", "unavailable", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
