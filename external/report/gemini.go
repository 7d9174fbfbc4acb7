package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/auth/credentials"
	"github.com/daease/medscribe/internal/report"
	"google.golang.org/genai"
)

type GeminiConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient connects to the Vertex AI Gemini backend.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (report.Client, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.ProjectID,
		Location:    cfg.Location,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	slog.Debug("requesting report generation", "model", c.model)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("model returned no candidates")
	}
	return text, nil
}
