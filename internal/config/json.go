package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/mediaup/internal/flagx"
	"github.com/dmitrijs2005/mediaup/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
//
// Zero values mean "not set" and leave the corresponding Config field
// untouched, so a partial JSON file only overrides what it names.
type JsonConfig struct {
	DataDir string `json:"data_dir"`

	PrimaryEndpoint    string         `json:"primary_endpoint"`
	PrimaryTimeout     timex.Duration `json:"primary_timeout"`
	PrimaryMaxAttempts int            `json:"primary_max_attempts"`

	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	S3Region             string         `json:"s3_region"`
	S3Bucket             string         `json:"s3_bucket"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
	S3PublicBaseURL      string         `json:"s3_public_base_url"`
	SecondaryTimeout     timex.Duration `json:"secondary_timeout"`
	SecondaryMaxAttempts int            `json:"secondary_max_attempts"`

	MaxConcurrent  int            `json:"max_concurrent"`
	RetryBaseDelay timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay  timex.Duration `json:"retry_max_delay"`
	Retention      timex.Duration `json:"retention"`

	SkipBelowBytes     int64 `json:"skip_below_bytes"`
	LightMaxBytes      int64 `json:"light_max_bytes"`
	MediumMaxBytes     int64 `json:"medium_max_bytes"`
	LightQuality       int   `json:"light_quality"`
	MediumQuality      int   `json:"medium_quality"`
	HeavyQuality       int   `json:"heavy_quality"`
	LightMaxDimension  int   `json:"light_max_dimension"`
	MediumMaxDimension int   `json:"medium_max_dimension"`
	HeavyMaxDimension  int   `json:"heavy_max_dimension"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies set (non-zero) fields into the provided Config.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DataDir, jc.DataDir)

	setString(&cfg.PrimaryEndpoint, jc.PrimaryEndpoint)
	setDuration(&cfg.PrimaryTimeout, jc.PrimaryTimeout)
	setInt(&cfg.PrimaryMaxAttempts, jc.PrimaryMaxAttempts)

	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3PublicBaseURL, jc.S3PublicBaseURL)
	setDuration(&cfg.SecondaryTimeout, jc.SecondaryTimeout)
	setInt(&cfg.SecondaryMaxAttempts, jc.SecondaryMaxAttempts)

	setInt(&cfg.MaxConcurrent, jc.MaxConcurrent)
	setDuration(&cfg.RetryBaseDelay, jc.RetryBaseDelay)
	setDuration(&cfg.RetryMaxDelay, jc.RetryMaxDelay)
	setDuration(&cfg.Retention, jc.Retention)

	setInt64(&cfg.SkipBelowBytes, jc.SkipBelowBytes)
	setInt64(&cfg.LightMaxBytes, jc.LightMaxBytes)
	setInt64(&cfg.MediumMaxBytes, jc.MediumMaxBytes)
	setInt(&cfg.LightQuality, jc.LightQuality)
	setInt(&cfg.MediumQuality, jc.MediumQuality)
	setInt(&cfg.HeavyQuality, jc.HeavyQuality)
	setInt(&cfg.LightMaxDimension, jc.LightMaxDimension)
	setInt(&cfg.MediumMaxDimension, jc.MediumMaxDimension)
	setInt(&cfg.HeavyMaxDimension, jc.HeavyMaxDimension)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
