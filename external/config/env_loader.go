package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/daease/medscribe/internal/config"
)

type envConfig struct {
	Env                        string  `env:"ENV" envDefault:"production"`
	HTTPAddr                   string  `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL                string  `env:"DATABASE_URL,required"`
	GoogleCloudProjectID       string  `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string  `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string  `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string  `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"latest_long"`
	DefaultLanguage            string  `env:"DEFAULT_LANGUAGE" envDefault:"en-US"`
	SampleRateHertz            int     `env:"SAMPLE_RATE_HERTZ" envDefault:"16000"`
	FrameDurationMs            int     `env:"FRAME_DURATION_MS" envDefault:"20"`
	BufferCapacitySec          int     `env:"AUDIO_BUFFER_CAPACITY_SEC" envDefault:"5"`
	BufferOverflow             string  `env:"AUDIO_BUFFER_OVERFLOW" envDefault:"drop_oldest"`
	CaptureDevice              string  `env:"CAPTURE_DEVICE" envDefault:"default"`
	FFmpegPath                 string  `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	MaxSessionDurationSec      int     `env:"MAX_SESSION_DURATION_SEC" envDefault:"300"`
	DrainMargin                float64 `env:"DRAIN_MARGIN" envDefault:"0.9"`
	OverlapMs                  int     `env:"OVERLAP_MS" envDefault:"1500"`
	MaxSessionRetries          int     `env:"MAX_SESSION_RETRIES" envDefault:"5"`
	RetryInitialBackoffMs      int     `env:"RETRY_INITIAL_BACKOFF_MS" envDefault:"500"`
	RetryMaxBackoffMs          int     `env:"RETRY_MAX_BACKOFF_MS" envDefault:"10000"`
	SessionConnectTimeoutSec   int     `env:"SESSION_CONNECT_TIMEOUT_SEC" envDefault:"15"`
	ReportModel                string  `env:"REPORT_MODEL" envDefault:"gemini-2.0-flash"`
	ReportLocation             string  `env:"REPORT_LOCATION" envDefault:"us-central1"`
	ReportMaxRetries           int     `env:"REPORT_MAX_RETRIES" envDefault:"3"`
	ReportTimeoutSec           int     `env:"REPORT_TIMEOUT_SEC" envDefault:"60"`
	TranscriptWebhookURL       string  `env:"TRANSCRIPT_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPAddr:                   raw.HTTPAddr,
		DatabaseURL:                raw.DatabaseURL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DefaultLanguage:            raw.DefaultLanguage,
		SampleRateHertz:            raw.SampleRateHertz,
		FrameDurationMs:            raw.FrameDurationMs,
		BufferCapacitySec:          raw.BufferCapacitySec,
		BufferOverflow:             internalconfig.OverflowPolicy(raw.BufferOverflow),
		CaptureDevice:              raw.CaptureDevice,
		FFmpegPath:                 raw.FFmpegPath,
		MaxSessionDurationSec:      raw.MaxSessionDurationSec,
		DrainMargin:                raw.DrainMargin,
		OverlapMs:                  raw.OverlapMs,
		MaxSessionRetries:          raw.MaxSessionRetries,
		RetryInitialBackoffMs:      raw.RetryInitialBackoffMs,
		RetryMaxBackoffMs:          raw.RetryMaxBackoffMs,
		SessionConnectTimeoutSec:   raw.SessionConnectTimeoutSec,
		ReportModel:                raw.ReportModel,
		ReportLocation:             raw.ReportLocation,
		ReportMaxRetries:           raw.ReportMaxRetries,
		ReportTimeoutSec:           raw.ReportTimeoutSec,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
