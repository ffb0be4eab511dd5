// Package bootstrap provides dependency initialization for the phraseloop API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/phraseloop/internal/analysis"
	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/config"
	"github.com/maauso/phraseloop/internal/session"
	"github.com/maauso/phraseloop/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	AnalysisService *analysis.Service
	Sessions        *session.Manager
}

// Close releases long-lived resources.
func (d *Dependencies) Close() {
	d.Sessions.CloseAll()
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath, cfg.DecodeSampleRate)
	repo := analysis.NewMemoryRepository()

	// Sessions follow re-analyses through the service result hook.
	sessions := session.NewManager(cfg.SessionOptions(), logger)

	svc := analysis.NewService(
		repo,
		store,
		decoder,
		logger,
		analysis.WithAnalyzer(cfg.Analyzer()),
		analysis.WithDefaultConfig(cfg.AnalysisConfig()),
		analysis.WithResultHook(sessions.Refresh),
	)

	return &Dependencies{
		AnalysisService: svc,
		Sessions:        sessions,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
