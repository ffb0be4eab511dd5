package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/storage"
)

var (
	// ErrInvalidAudio is returned when uploaded audio is empty or not valid base64.
	ErrInvalidAudio = errors.New("invalid audio payload")
	// ErrAnalysisBusy is returned when an operation needs a settled analysis
	// but a run is queued or in progress.
	ErrAnalysisBusy = errors.New("analysis is busy")
	// ErrNotRunning is returned by Execute for an analysis that was not claimed.
	ErrNotRunning = errors.New("analysis is not running")
)

// CreateInput contains the input parameters for a new analysis.
type CreateInput struct {
	// AudioBase64 is the base64-encoded source audio in any ffmpeg-readable format.
	AudioBase64 string
	// AudioName is an optional original file name.
	AudioName string
	// Config overrides the service default thresholds when non-nil.
	Config *audio.AnalysisConfig
	// PushToS3 exports each resulting segment list to S3.
	PushToS3 bool
}

// ResultHook is called with a clone of every analysis that completes.
type ResultHook func(a *Analysis)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAnalyzer sets the analyzer window sizes.
func WithAnalyzer(a audio.Analyzer) ServiceOption {
	return func(s *Service) {
		s.analyzer = a
	}
}

// WithDefaultConfig sets the thresholds used when a request has none.
func WithDefaultConfig(cfg audio.AnalysisConfig) ServiceOption {
	return func(s *Service) {
		s.defaults = cfg
	}
}

// WithResultHook registers a hook run after each successful analysis.
func WithResultHook(h ResultHook) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// Service orchestrates the analysis workflow: store the upload, decode it,
// detect segments, persist the result and optionally export it.
type Service struct {
	repo     Repository
	store    storage.Storage
	decoder  audio.Decoder
	analyzer audio.Analyzer
	defaults audio.AnalysisConfig
	hooks    []ResultHook
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(repo Repository, store storage.Storage, decoder audio.Decoder, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		store:    store,
		decoder:  decoder,
		analyzer: audio.DefaultAnalyzer(),
		defaults: audio.DefaultAnalysisConfig(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultConfig returns the thresholds applied when a request has none.
func (s *Service) DefaultConfig() audio.AnalysisConfig {
	return s.defaults
}

// Create stores the uploaded audio and persists a queued analysis.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Analysis, error) {
	cfg := s.defaults
	if input.Config != nil {
		cfg = *input.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(input.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrInvalidAudio)
	}

	name := "audio" + strings.ToLower(filepath.Ext(input.AudioName))
	path, err := s.store.SaveTemp(ctx, name, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("save audio: %w", err)
	}

	a := New(cfg)
	a.AudioPath = path
	a.AudioName = input.AudioName
	a.PushToS3 = input.PushToS3

	s.logger.Info("creating new analysis",
		slog.String("analysis_id", a.ID),
		slog.Int("audio_bytes", len(data)),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, a); err != nil {
		s.logger.Error("failed to save analysis",
			slog.String("analysis_id", a.ID),
			slog.String("error", err.Error()),
		)
		_ = s.store.CleanupTemp(ctx, []string{path})
		return nil, err
	}
	return a.Clone(), nil
}

// Start claims a queued analysis by moving it to RUNNING.
func (s *Service) Start(ctx context.Context, id string) (*Analysis, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.Start(); err != nil {
		return nil, fmt.Errorf("%w: status %s", ErrAnalysisBusy, a.GetStatus())
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reanalyze claims a settled analysis for another run with cfg. A nil cfg
// keeps the previous thresholds. Call Execute to perform the run.
func (s *Service) Reanalyze(ctx context.Context, id string, cfg *audio.AnalysisConfig) (*Analysis, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := a.Config
	if cfg != nil {
		next = *cfg
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := a.Restart(next); err != nil {
		return nil, fmt.Errorf("%w: status %s", ErrAnalysisBusy, a.GetStatus())
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("re-analysis requested",
		slog.String("analysis_id", id),
		slog.Int("run", a.Runs),
	)
	return a, nil
}

// Execute decodes the audio of a RUNNING analysis, detects its segments
// and stores the result. Failures are recorded on the analysis.
func (s *Service) Execute(ctx context.Context, id string) (*Analysis, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.GetStatus() != StatusRunning {
		return nil, fmt.Errorf("%w: status %s", ErrNotRunning, a.GetStatus())
	}

	logger := s.logger.With(slog.String("analysis_id", id), slog.Int("run", a.Runs))

	src, err := s.decoder.Decode(ctx, a.AudioPath)
	if err != nil {
		return nil, s.fail(ctx, logger, a, fmt.Errorf("decode audio: %w", err))
	}

	segments, err := s.analyzer.DetectSegments(src, a.Config)
	if err != nil {
		return nil, s.fail(ctx, logger, a, fmt.Errorf("detect segments: %w", err))
	}

	if err := a.Complete(segments, src); err != nil {
		return nil, err
	}

	if a.PushToS3 {
		url, err := s.export(ctx, a)
		if err != nil {
			// The segments are still usable locally.
			logger.Warn("failed to export segments", slog.String("error", err.Error()))
		} else {
			a.SetSegmentsURL(url)
		}
	}

	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}

	logger.Info("analysis completed",
		slog.Int("segments", len(segments)),
		slog.Float64("duration_sec", src.Duration()),
	)

	result := a.Clone()
	for _, h := range s.hooks {
		h(result.Clone())
	}
	return result, nil
}

// Run starts a queued analysis and executes it synchronously.
func (s *Service) Run(ctx context.Context, id string) (*Analysis, error) {
	if _, err := s.Start(ctx, id); err != nil {
		return nil, err
	}
	return s.Execute(ctx, id)
}

// Process creates an analysis and runs it to completion.
func (s *Service) Process(ctx context.Context, input CreateInput) (*Analysis, error) {
	a, err := s.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, a.ID)
}

// Get retrieves an analysis by ID.
func (s *Service) Get(ctx context.Context, id string) (*Analysis, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all analyses, oldest first.
func (s *Service) List(ctx context.Context) ([]*Analysis, error) {
	return s.repo.List(ctx)
}

// Delete removes a settled or queued analysis with its audio and export.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if a.GetStatus() == StatusRunning {
		return fmt.Errorf("%w: status %s", ErrAnalysisBusy, StatusRunning)
	}

	if err := s.store.CleanupTemp(ctx, []string{a.AudioPath}); err != nil {
		s.logger.Warn("failed to remove audio",
			slog.String("analysis_id", id),
			slog.String("error", err.Error()),
		)
	}
	if a.SegmentsURL != "" {
		if err := s.store.DeleteFromS3(ctx, exportKey(id)); err != nil {
			s.logger.Warn("failed to remove exported segments",
				slog.String("analysis_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("analysis deleted", slog.String("analysis_id", id))
	return nil
}

// OpenAudio returns the stored source audio of an analysis.
// The caller is responsible for closing the returned ReadCloser.
func (s *Service) OpenAudio(ctx context.Context, id string) (io.ReadCloser, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.LoadTemp(ctx, a.AudioPath)
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, a *Analysis, cause error) error {
	logger.Error("analysis failed", slog.String("error", cause.Error()))
	if err := a.Fail(cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// segmentExport is the JSON document exported to S3.
type segmentExport struct {
	AnalysisID     string               `json:"analysis_id"`
	Run            int                  `json:"run"`
	SourceDuration float64              `json:"source_duration"`
	Config         audio.AnalysisConfig `json:"config"`
	Summary        audio.Summary        `json:"summary"`
	Segments       []exportedSegment    `json:"segments"`
}

type exportedSegment struct {
	audio.Segment
	Label string `json:"label"`
}

func (s *Service) export(ctx context.Context, a *Analysis) (string, error) {
	snapshot := a.Clone()
	doc := segmentExport{
		AnalysisID:     snapshot.ID,
		Run:            snapshot.Runs,
		SourceDuration: snapshot.SourceDuration,
		Config:         snapshot.Config,
		Summary:        snapshot.Summary,
		Segments:       make([]exportedSegment, len(snapshot.Segments)),
	}
	for i, seg := range snapshot.Segments {
		doc.Segments[i] = exportedSegment{Segment: seg, Label: seg.Label()}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode segments: %w", err)
	}
	return s.store.UploadToS3(ctx, exportKey(snapshot.ID), bytes.NewReader(body))
}

func exportKey(id string) string {
	return "analyses/" + id + "/segments.json"
}
