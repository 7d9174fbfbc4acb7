package transcriber

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/daease/medscribe/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
	SampleRateHertz int
}

type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string
	sampleRateHertz int
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
		sampleRateHertz: cfg.SampleRateHertz,
	}
}

// StartSession opens one bounded streaming recognition session. The provider
// enforces a hard per-session duration limit; hitting it closes Results
// without an error and the caller rotates to a successor session.
func (t *CloudSpeechTranscriber) StartSession(ctx context.Context, language string) (transcriber.Session, error) {
	slog.Info("starting cloud speech session", "location", t.location, "language", language, "model", t.model)

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location)
	configReq := &speechpb.StreamingRecognizeRequest{
		Recognizer: recognizer,
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         t.model,
					LanguageCodes: []string{language},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   int32(t.sampleRateHertz),
							AudioChannelCount: 1,
						},
					},
					Features: &speechpb.RecognitionFeatures{
						EnableAutomaticPunctuation: true,
					},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: true},
			},
		},
	}
	if err := stream.Send(configReq); err != nil {
		_ = stream.CloseSend()
		_ = client.Close()
		return nil, err
	}

	s := &cloudSession{
		client:  client,
		stream:  stream,
		results: make(chan transcriber.Result, 32),
	}
	go s.receiveLoop()
	return s, nil
}

type cloudSession struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient

	mu         sync.Mutex
	sendClosed bool

	results chan transcriber.Result
	err     error
}

func (s *cloudSession) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return io.ErrClosedPipe
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{
			Audio: pcm,
		},
	})
}

func (s *cloudSession) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	return s.stream.CloseSend()
}

func (s *cloudSession) Results() <-chan transcriber.Result {
	return s.results
}

// Err is valid once Results has been closed.
func (s *cloudSession) Err() error {
	return s.err
}

func (s *cloudSession) receiveLoop() {
	defer close(s.results)
	defer func() {
		if err := s.client.Close(); err != nil {
			slog.Warn("failed to close speech client", "error", err)
		}
	}()

	var lastFinalEnd time.Duration
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if isExpectedSessionClose(err) {
				slog.Info("cloud speech session closed", "reason", err.Error())
				return
			}
			s.err = err
			return
		}
		for _, result := range resp.GetResults() {
			if len(result.GetAlternatives()) == 0 {
				continue
			}
			alt := result.GetAlternatives()[0]
			end := result.GetResultEndOffset().AsDuration()
			s.results <- transcriber.Result{
				Text:       alt.GetTranscript(),
				Final:      result.GetIsFinal(),
				Confidence: alt.GetConfidence(),
				Start:      lastFinalEnd,
				End:        end,
			}
			if result.GetIsFinal() {
				lastFinalEnd = end
			}
		}
	}
}

// isExpectedSessionClose reports whether the stream ended for a reason that
// is part of normal operation: a clean close after CloseSend, cancellation,
// or the provider cutting the stream at its hard duration limit.
func isExpectedSessionClose(err error) bool {
	if err == io.EOF {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return strings.Contains(err.Error(), "context canceled")
	}
	switch st.Code() {
	case codes.Canceled:
		return true
	case codes.Aborted:
		msg := strings.ToLower(st.Message())
		return strings.Contains(msg, "max duration") ||
			strings.Contains(msg, "stream timed out after receiving no more client requests")
	default:
		return false
	}
}
