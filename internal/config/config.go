// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/playback"
	"github.com/maauso/phraseloop/internal/session"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidLogFormat is returned when LOG_FORMAT is neither json nor text.
	ErrInvalidLogFormat = errors.New("config: LOG_FORMAT must be json or text")
	// ErrInvalidDuration is returned when a millisecond setting is negative.
	ErrInvalidDuration = errors.New("config: durations must not be negative")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/phraseloop" json:"temp_dir"`

	// Decoder settings
	FFmpegPath       string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	DecodeSampleRate int    `env:"DECODE_SAMPLE_RATE, default=16000" json:"decode_sample_rate"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"

	// Default analysis thresholds
	SilenceAmplitude float64 `env:"SILENCE_AMPLITUDE, default=0.01" json:"silence_amplitude"`
	MinSilenceSec    float64 `env:"MIN_SILENCE_SEC, default=1.0" json:"min_silence_sec"`
	MinSegmentSec    float64 `env:"MIN_SEGMENT_SEC, default=3.0" json:"min_segment_sec"`
	MaxSegmentSec    float64 `env:"MAX_SEGMENT_SEC, default=15.0" json:"max_segment_sec"`
	AnalysisWindowMs int     `env:"ANALYSIS_WINDOW_MS, default=100" json:"analysis_window_ms"`

	// Default practice session settings
	PlaybackSpeed      float64 `env:"PLAYBACK_SPEED, default=1.0" json:"playback_speed"`
	LoopTarget         int     `env:"LOOP_TARGET, default=1" json:"loop_target"`
	ContinuousMode     bool    `env:"CONTINUOUS_MODE, default=false" json:"continuous_mode"`
	LoopRestartDelayMs int     `env:"LOOP_RESTART_DELAY_MS, default=200" json:"loop_restart_delay_ms"`
	AdvanceDelayMs     int     `env:"ADVANCE_DELAY_MS, default=500" json:"advance_delay_ms"`
	BackupSlackMs      int     `env:"BACKUP_SLACK_MS, default=100" json:"backup_slack_ms"`
	PositionIntervalMs int     `env:"POSITION_INTERVAL_MS, default=250" json:"position_interval_ms"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	for _, ms := range []int{c.AnalysisWindowMs, c.LoopRestartDelayMs, c.AdvanceDelayMs, c.BackupSlackMs, c.PositionIntervalMs} {
		if ms < 0 {
			return ErrInvalidDuration
		}
	}
	if err := c.AnalysisConfig().Validate(); err != nil {
		return err
	}
	return c.PlaybackSettings().Validate()
}

// AnalysisConfig returns the default analysis thresholds.
func (c *Config) AnalysisConfig() audio.AnalysisConfig {
	return audio.AnalysisConfig{
		SilenceAmplitude:   c.SilenceAmplitude,
		MinSilenceDuration: c.MinSilenceSec,
		MinSegmentDuration: c.MinSegmentSec,
		MaxSegmentDuration: c.MaxSegmentSec,
		Energy:             audio.EnergyRMS,
	}
}

// Analyzer returns the analyzer with the configured window. Zero keeps the
// default window; the split sub-window is half the window.
func (c *Config) Analyzer() audio.Analyzer {
	a := audio.DefaultAnalyzer()
	if c.AnalysisWindowMs > 0 {
		a.Window = time.Duration(c.AnalysisWindowMs) * time.Millisecond
		a.SubWindow = a.Window / 2
	}
	return a
}

// PlaybackSettings returns the initial settings of new practice sessions.
func (c *Config) PlaybackSettings() playback.Settings {
	return playback.Settings{
		Speed:          c.PlaybackSpeed,
		LoopTarget:     c.LoopTarget,
		ContinuousMode: c.ContinuousMode,
	}
}

// Timing returns the scheduler pauses.
func (c *Config) Timing() playback.Timing {
	return playback.Timing{
		LoopRestartDelay: time.Duration(c.LoopRestartDelayMs) * time.Millisecond,
		AdvanceDelay:     time.Duration(c.AdvanceDelayMs) * time.Millisecond,
		BackupSlack:      time.Duration(c.BackupSlackMs) * time.Millisecond,
	}
}

// SessionOptions returns the options for new practice sessions.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Settings:         c.PlaybackSettings(),
		Timing:           c.Timing(),
		PositionInterval: time.Duration(c.PositionIntervalMs) * time.Millisecond,
	}
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, DecodeSampleRate: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s, Analysis: %+v, Playback: %+v}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.DecodeSampleRate,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
		c.AnalysisConfig(),
		c.PlaybackSettings(),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
