package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/playback"
)

var envVars = []string{
	"PORT", "TEMP_DIR", "FFMPEG_PATH", "DECODE_SAMPLE_RATE",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"LOG_FORMAT", "LOG_LEVEL",
	"SILENCE_AMPLITUDE", "MIN_SILENCE_SEC", "MIN_SEGMENT_SEC", "MAX_SEGMENT_SEC", "ANALYSIS_WINDOW_MS",
	"PLAYBACK_SPEED", "LOOP_TARGET", "CONTINUOUS_MODE",
	"LOOP_RESTART_DELAY_MS", "ADVANCE_DELAY_MS", "BACKUP_SLACK_MS", "POSITION_INTERVAL_MS",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/phraseloop", cfg.TempDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 16000, cfg.DecodeSampleRate)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())

	assert.Equal(t, audio.DefaultAnalysisConfig(), cfg.AnalysisConfig())
	assert.Equal(t, audio.DefaultAnalyzer(), cfg.Analyzer())
	assert.Equal(t, playback.DefaultSettings(), cfg.PlaybackSettings())
	assert.Equal(t, playback.DefaultTiming(), cfg.Timing())
	assert.Equal(t, playback.DefaultPositionInterval, cfg.SessionOptions().PositionInterval)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("DECODE_SAMPLE_RATE", "22050")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SILENCE_AMPLITUDE", "0.02")
	t.Setenv("MIN_SILENCE_SEC", "0.5")
	t.Setenv("MIN_SEGMENT_SEC", "2")
	t.Setenv("MAX_SEGMENT_SEC", "10")
	t.Setenv("ANALYSIS_WINDOW_MS", "40")
	t.Setenv("PLAYBACK_SPEED", "0.75")
	t.Setenv("LOOP_TARGET", "3")
	t.Setenv("CONTINUOUS_MODE", "true")
	t.Setenv("LOOP_RESTART_DELAY_MS", "300")
	t.Setenv("ADVANCE_DELAY_MS", "1000")
	t.Setenv("BACKUP_SLACK_MS", "150")
	t.Setenv("POSITION_INTERVAL_MS", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 22050, cfg.DecodeSampleRate)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Equal(t, audio.AnalysisConfig{
		SilenceAmplitude:   0.02,
		MinSilenceDuration: 0.5,
		MinSegmentDuration: 2,
		MaxSegmentDuration: 10,
		Energy:             audio.EnergyRMS,
	}, cfg.AnalysisConfig())

	analyzer := cfg.Analyzer()
	assert.Equal(t, 40*time.Millisecond, analyzer.Window)
	assert.Equal(t, 20*time.Millisecond, analyzer.SubWindow)

	assert.Equal(t, playback.Settings{Speed: 0.75, LoopTarget: 3, ContinuousMode: true}, cfg.PlaybackSettings())
	assert.Equal(t, playback.Timing{
		LoopRestartDelay: 300 * time.Millisecond,
		AdvanceDelay:     time.Second,
		BackupSlack:      150 * time.Millisecond,
	}, cfg.Timing())

	opts := cfg.SessionOptions()
	assert.Equal(t, 100*time.Millisecond, opts.PositionInterval)
	assert.Equal(t, cfg.PlaybackSettings(), opts.Settings)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"non-numeric port", map[string]string{"PORT": "not-a-number"}, nil},
		{"port out of range", map[string]string{"PORT": "70000"}, ErrInvalidPort},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, ErrInvalidLogFormat},
		{"bucket without region", map[string]string{"S3_BUCKET": "b"}, ErrS3RegionRequired},
		{"negative delay", map[string]string{"ADVANCE_DELAY_MS": "-5"}, ErrInvalidDuration},
		{"max below min segment", map[string]string{"MAX_SEGMENT_SEC": "2"}, audio.ErrInvalidConfig},
		{"silence amplitude above one", map[string]string{"SILENCE_AMPLITUDE": "1.5"}, audio.ErrInvalidConfig},
		{"speed too high", map[string]string{"PLAYBACK_SPEED": "5"}, playback.ErrInvalidSettings},
		{"loop target zero", map[string]string{"LOOP_TARGET": "0"}, playback.ErrInvalidSettings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "AKIAEXAMPLE",
		AWSSecretAccessKey: "secret-key",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "AKIAEXAMPLE")
}

func TestConfig_NewLogger(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{LogFormat: format, LogLevel: "warn"}

			logger := cfg.NewLogger()
			require.NotNil(t, logger)
			assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
			assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
