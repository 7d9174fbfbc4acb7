package report

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	// KindMedicalReport is the structured visit report.
	KindMedicalReport Kind = "medical_report"
	// KindAssessment is the free-form AI medical assessment.
	KindAssessment Kind = "ai_assessment"
)

// NotSpecified fills report sections the model produced no content for.
const NotSpecified = "Not specified"

// SectionNames is the fixed section set of a structured medical report,
// in presentation order.
var SectionNames = []string{
	"Patient Details",
	"Chief Complaint",
	"Symptoms",
	"Medical History",
	"Physical Examination",
	"Assessment",
	"Plan",
	"Notes",
}

type MedicalReport struct {
	Kind        Kind
	Sections    map[string]string
	RawText     string
	GeneratedAt time.Time
}

// ErrInvalidInput rejects empty or whitespace-only transcripts before any
// remote call is made.
var ErrInvalidInput = errors.New("report: transcript is empty")

// GenerationError wraps the last underlying cause after retries were
// exhausted. No partial report is returned alongside it.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("report generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Client is the raw language-model call; the provider adapter implements it.
type Client interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
