package config

import (
	"fmt"
	"time"
)

type OverflowPolicy string

const (
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowBlock      OverflowPolicy = "block"
)

type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DefaultLanguage            string

	SampleRateHertz   int
	FrameDurationMs   int
	BufferCapacitySec int
	BufferOverflow    OverflowPolicy
	CaptureDevice     string
	FFmpegPath        string

	MaxSessionDurationSec    int
	DrainMargin              float64
	OverlapMs                int
	MaxSessionRetries        int
	RetryInitialBackoffMs    int
	RetryMaxBackoffMs        int
	SessionConnectTimeoutSec int

	ReportModel      string
	ReportLocation   string
	ReportMaxRetries int
	ReportTimeoutSec int

	TranscriptWebhookURL string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.SampleRateHertz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HERTZ must be positive, got %d", c.SampleRateHertz)
	}
	if c.FrameDurationMs <= 0 {
		return fmt.Errorf("FRAME_DURATION_MS must be positive, got %d", c.FrameDurationMs)
	}
	if c.BufferCapacitySec <= 0 {
		return fmt.Errorf("AUDIO_BUFFER_CAPACITY_SEC must be positive, got %d", c.BufferCapacitySec)
	}
	if c.BufferOverflow != OverflowDropOldest && c.BufferOverflow != OverflowBlock {
		return fmt.Errorf("AUDIO_BUFFER_OVERFLOW must be %q or %q, got %q", OverflowDropOldest, OverflowBlock, c.BufferOverflow)
	}
	if c.MaxSessionDurationSec <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_SEC must be positive, got %d", c.MaxSessionDurationSec)
	}
	if c.DrainMargin <= 0 || c.DrainMargin > 1 {
		return fmt.Errorf("DRAIN_MARGIN must be in (0, 1], got %v", c.DrainMargin)
	}
	if c.OverlapMs < 0 {
		return fmt.Errorf("OVERLAP_MS must be non-negative, got %d", c.OverlapMs)
	}
	if c.Overlap() >= c.DrainThreshold() {
		return fmt.Errorf("OVERLAP_MS must be smaller than the drain threshold (%v)", c.DrainThreshold())
	}
	if c.MaxSessionRetries <= 0 {
		return fmt.Errorf("MAX_SESSION_RETRIES must be positive, got %d", c.MaxSessionRetries)
	}
	if c.ReportMaxRetries <= 0 {
		return fmt.Errorf("REPORT_MAX_RETRIES must be positive, got %d", c.ReportMaxRetries)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "DEFAULT_LANGUAGE", value: c.DefaultLanguage},
		{name: "REPORT_MODEL", value: c.ReportModel},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameDurationMs) * time.Millisecond
}

// FrameBytes is the size of one PCM frame: 16-bit mono samples.
func (c *Config) FrameBytes() int {
	return c.SampleRateHertz * c.FrameDurationMs / 1000 * 2
}

func (c *Config) BufferCapacityFrames() int {
	return c.BufferCapacitySec * 1000 / c.FrameDurationMs
}

func (c *Config) MaxSessionDuration() time.Duration {
	return time.Duration(c.MaxSessionDurationSec) * time.Second
}

// DrainThreshold is the cumulative audio duration after which a session
// proactively drains instead of running into the provider's hard limit.
func (c *Config) DrainThreshold() time.Duration {
	return time.Duration(float64(c.MaxSessionDuration()) * c.DrainMargin)
}

func (c *Config) Overlap() time.Duration {
	return time.Duration(c.OverlapMs) * time.Millisecond
}

func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
}

func (c *Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
}

func (c *Config) SessionConnectTimeout() time.Duration {
	return time.Duration(c.SessionConnectTimeoutSec) * time.Second
}

func (c *Config) ReportTimeout() time.Duration {
	return time.Duration(c.ReportTimeoutSec) * time.Second
}
