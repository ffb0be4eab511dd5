// Package session runs server-side practice sessions. A session pairs a
// playback.Scheduler with a software Transport sized to the analysed audio
// and broadcasts the scheduler events to connected listeners, whose own
// players follow the event stream.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/playback"
)

var (
	// ErrSessionNotFound is returned when no session exists for an analysis.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotReady is returned when a session is requested for an analysis
	// that has no segments yet.
	ErrNotReady = errors.New("analysis has no segments yet")
	// ErrUnknownSegment is returned by Play for an index outside the segment list.
	ErrUnknownSegment = errors.New("unknown segment")
)

// Options configure new sessions.
type Options struct {
	// Settings are the initial playback settings of each session.
	Settings playback.Settings
	// Timing holds the scheduler pauses.
	Timing playback.Timing
	// PositionInterval is the transport sampling cadence.
	PositionInterval time.Duration
	// Clock drives the transport and scheduler. Nil uses the system clock.
	Clock playback.Clock
}

// DefaultOptions returns the standard session options.
func DefaultOptions() Options {
	return Options{
		Settings:         playback.DefaultSettings(),
		Timing:           playback.DefaultTiming(),
		PositionInterval: playback.DefaultPositionInterval,
	}
}

// Snapshot describes a session at one point in time.
type Snapshot struct {
	AnalysisID string            `json:"analysis_id"`
	State      playback.State    `json:"state"`
	Settings   playback.Settings `json:"settings"`
	Playing    bool              `json:"playing"`
	Rate       float64           `json:"rate"`
	Position   float64           `json:"position"`
	Duration   float64           `json:"duration"`
	Segments   int               `json:"segments"`
	Listeners  int               `json:"listeners"`
}

// Session is one practice session over the segments of an analysis.
type Session struct {
	analysisID string
	transport  *playback.Transport
	scheduler  *playback.Scheduler
	events     *Broadcaster
	logger     *slog.Logger
}

// New creates an idle session for audio of the given duration.
func New(analysisID string, duration float64, segments []audio.Segment, opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("session settings: %w", err)
	}
	logger = logger.With(slog.String("analysis_id", analysisID))

	s := &Session{
		analysisID: analysisID,
		events:     NewBroadcaster(),
		logger:     logger,
	}
	s.transport = playback.NewTransport(duration,
		playback.WithTransportClock(opts.Clock),
		playback.WithPositionInterval(opts.PositionInterval),
		playback.WithTransportLogger(logger),
	)
	s.scheduler = playback.NewScheduler(s.transport,
		playback.WithClock(opts.Clock),
		playback.WithTiming(opts.Timing),
		playback.WithSettings(opts.Settings),
		playback.WithLogger(logger),
		playback.WithListener(s.events.Publish),
	)
	s.scheduler.SetSegments(segments)
	return s, nil
}

// AnalysisID returns the analysis the session belongs to.
func (s *Session) AnalysisID() string {
	return s.analysisID
}

// Play starts segment index. opts.Speed of zero uses the session speed.
func (s *Session) Play(index int, opts playback.PlayOptions) error {
	if n := len(s.scheduler.Segments()); index < 0 || index >= n {
		return fmt.Errorf("%w: %d of %d", ErrUnknownSegment, index, n)
	}
	s.logger.Info("play requested",
		slog.Int("index", index),
		slog.Float64("speed", opts.Speed),
		slog.Bool("infinite_loop", opts.InfiniteLoop),
	)
	s.scheduler.Play(index, opts)
	return nil
}

// Stop stops playback.
func (s *Session) Stop() {
	s.scheduler.Stop()
}

// SetSettings replaces the session settings for the next played segment.
func (s *Session) SetSettings(st playback.Settings) error {
	if err := s.scheduler.SetSettings(st); err != nil {
		return err
	}
	s.logger.Info("session settings updated",
		slog.Float64("speed", st.Speed),
		slog.Int("loop_target", st.LoopTarget),
		slog.Bool("continuous_mode", st.ContinuousMode),
	)
	return nil
}

// Settings returns the session settings.
func (s *Session) Settings() playback.Settings {
	return s.scheduler.Settings()
}

// State returns the scheduler state.
func (s *Session) State() playback.State {
	return s.scheduler.State()
}

// Segments returns the segment list the session plays.
func (s *Session) Segments() []audio.Segment {
	return s.scheduler.Segments()
}

// Replace swaps in a new segment list, stopping playback.
func (s *Session) Replace(segments []audio.Segment) {
	s.scheduler.SetSegments(segments)
	s.logger.Info("session segments replaced", slog.Int("segments", len(segments)))
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		AnalysisID: s.analysisID,
		State:      s.scheduler.State(),
		Settings:   s.scheduler.Settings(),
		Playing:    s.transport.Playing(),
		Rate:       s.transport.Rate(),
		Position:   s.transport.Position(),
		Duration:   s.transport.Duration(),
		Segments:   len(s.scheduler.Segments()),
		Listeners:  s.events.Count(),
	}
}

// Subscribe returns a subscriber for the session events.
// Call Unsubscribe when done.
func (s *Session) Subscribe() *Subscriber {
	return s.events.Subscribe()
}

// Unsubscribe removes a subscriber.
func (s *Session) Unsubscribe(sub *Subscriber) {
	s.events.Unsubscribe(sub)
}

// Close stops playback, releases the transport and disconnects listeners.
func (s *Session) Close() {
	s.scheduler.Close()
	s.transport.Close()
	s.events.Close()
	s.logger.Debug("session closed")
}
