// Package config handles configuration for the upload pipeline,
// including defaults, JSON overlay, and command-line flags.
//
// Every product-tuning constant of the pipeline (byte cutoffs, quality
// values, attempt budgets, backoff, retention) lives here so that none of
// them is hard-coded into the components that use them.
package config

import "time"

// Config holds runtime settings for the media upload pipeline.
//
// Fields:
//   - DataDir: directory holding the local upload-state database.
//   - PrimaryEndpoint: URL of the managed upload endpoint (multipart POST).
//   - PrimaryTimeout / PrimaryMaxAttempts: per-attempt wall clock limit and
//     attempt budget of the primary transport tier.
//   - S3* fields: the secondary transport tier, a direct PUT into a
//     pre-authorized S3-compatible bucket. S3PublicBaseURL is the prefix
//     public object URLs are built from.
//   - MaxConcurrent: how many items are processed in parallel.
//   - RetryBaseDelay / RetryMaxDelay: attempt-scaled backoff parameters.
//   - Retention: sessions older than this are compacted away.
//   - Skip/Light/Medium thresholds and per-band quality/dimension values:
//     the compression policy bands.
type Config struct {
	DataDir string

	PrimaryEndpoint    string
	PrimaryTimeout     time.Duration
	PrimaryMaxAttempts int

	S3BaseEndpoint      string
	S3Region            string
	S3Bucket            string
	S3AccessKey         string
	S3SecretKey         string
	S3PublicBaseURL     string
	SecondaryTimeout    time.Duration
	SecondaryMaxAttempts int

	MaxConcurrent  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Retention      time.Duration

	SkipBelowBytes     int64
	LightMaxBytes      int64
	MediumMaxBytes     int64
	LightQuality       int
	MediumQuality      int
	HeavyQuality       int
	LightMaxDimension  int
	MediumMaxDimension int
	HeavyMaxDimension  int
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The endpoints and credentials are placeholders and should be
// overridden outside local development.
func (c *Config) LoadDefaults() {
	c.DataDir = "mediaup"

	c.PrimaryEndpoint = "http://127.0.0.1:8080/v1/media"
	c.PrimaryTimeout = 30 * time.Second
	c.PrimaryMaxAttempts = 3

	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3Region = "us-east-1"
	c.S3Bucket = "media"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3PublicBaseURL = "http://127.0.0.1:9000/media"
	c.SecondaryTimeout = 2 * time.Minute
	c.SecondaryMaxAttempts = 2

	c.MaxConcurrent = 3
	c.RetryBaseDelay = 500 * time.Millisecond
	c.RetryMaxDelay = 5 * time.Second
	c.Retention = 24 * time.Hour

	c.SkipBelowBytes = 400 << 10
	c.LightMaxBytes = 2 << 20
	c.MediumMaxBytes = 8 << 20
	c.LightQuality = 85
	c.MediumQuality = 75
	c.HeavyQuality = 60
	c.LightMaxDimension = 2048
	c.MediumMaxDimension = 1600
	c.HeavyMaxDimension = 1280
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
