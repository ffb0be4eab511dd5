// Package analysis provides the Analysis aggregate: one uploaded recording,
// the configuration it was analyzed with and the resulting segment list.
// It includes the status state machine, repository port and the service
// that runs decoding and segment detection.
package analysis

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/phraseloop/internal/analysis/id"
	"github.com/maauso/phraseloop/internal/audio"
)

// Status represents the current state of an Analysis.
type Status string

const (
	// StatusInQueue indicates the audio is stored and waiting to be analyzed.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates decoding or segment detection is in progress.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates a segment list is available.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the last run failed.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Settled analyses may go back to RUNNING to be re-analyzed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRunning},
	StatusFailed:    {StatusRunning},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Analysis is the aggregate for one recording and its segment list.
type Analysis struct {
	mu sync.RWMutex

	// ID is the unique identifier for this analysis.
	ID string
	// Status is the current analysis state.
	Status Status
	// Config holds the thresholds used for the latest run.
	Config audio.AnalysisConfig
	// Segments is the latest detected segment list. It is replaced
	// wholesale by each successful run and never edited in place.
	Segments []audio.Segment
	// Summary describes Segments.
	Summary audio.Summary
	// SourceDuration is the decoded audio length in seconds.
	SourceDuration float64
	// SampleRate is the rate the audio was decoded at.
	SampleRate int
	// Runs counts started analysis runs, including re-analyses.
	Runs int
	// AudioPath is the stored location of the uploaded audio.
	AudioPath string
	// AudioName is the client-supplied file name, if any.
	AudioName string
	// PushToS3 indicates whether segment lists are exported to S3.
	PushToS3 bool
	// SegmentsURL is the S3 URL of the exported segment list.
	SegmentsURL string
	// Error contains the failure message of the last run.
	Error string
	// CreatedAt is when the analysis was created.
	CreatedAt time.Time
	// UpdatedAt is when the analysis was last updated.
	UpdatedAt time.Time
	// StartedAt is when the latest run started.
	StartedAt time.Time
	// CompletedAt is when the latest run finished.
	CompletedAt time.Time
}

// New creates a new Analysis with a generated ID and initial IN_QUEUE status.
func New(cfg audio.AnalysisConfig) *Analysis {
	return NewWithID(id.Generate(), cfg)
}

// NewWithID creates a new Analysis with the specified ID and initial IN_QUEUE status.
func NewWithID(analysisID string, cfg audio.AnalysisConfig) *Analysis {
	now := time.Now()
	return &Analysis{
		ID:        analysisID,
		Status:    StatusInQueue,
		Config:    cfg,
		Segments:  make([]audio.Segment, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the analysis status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (a *Analysis) TransitionTo(status Status) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transitionLocked(status)
}

func (a *Analysis) transitionLocked(status Status) error {
	if !canTransition(a.Status, status) {
		return ErrInvalidTransition
	}

	a.Status = status
	a.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		a.StartedAt = a.UpdatedAt
		a.CompletedAt = time.Time{}
		a.Error = ""
		a.Runs++
	case StatusCompleted, StatusFailed:
		a.CompletedAt = a.UpdatedAt
	}
	return nil
}

// Start transitions the analysis to RUNNING.
func (a *Analysis) Start() error {
	return a.TransitionTo(StatusRunning)
}

// Restart replaces the config and moves a settled analysis back to RUNNING.
// The previous segments stay visible until the new run completes.
func (a *Analysis) Restart(cfg audio.AnalysisConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.transitionLocked(StatusRunning); err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// Complete stores the result of a run and transitions to COMPLETED.
func (a *Analysis) Complete(segments []audio.Segment, src audio.Source) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	a.Segments = cloneSegments(segments)
	a.SourceDuration = src.Duration()
	a.SampleRate = src.SampleRate
	a.Summary = audio.Summarize(segments, a.SourceDuration)
	return nil
}

// Fail transitions the analysis to FAILED state with an error message.
func (a *Analysis) Fail(errMsg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.transitionLocked(StatusFailed); err != nil {
		return err
	}
	a.Error = errMsg
	return nil
}

// SetSegmentsURL records where the segment list was exported.
func (a *Analysis) SetSegmentsURL(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SegmentsURL = url
	a.UpdatedAt = time.Now()
}

// GetStatus returns the current analysis status (thread-safe).
func (a *Analysis) GetStatus() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Status
}

// Clone creates a deep copy of the analysis for safe reads.
func (a *Analysis) Clone() *Analysis {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return &Analysis{
		ID:             a.ID,
		Status:         a.Status,
		Config:         a.Config,
		Segments:       cloneSegments(a.Segments),
		Summary:        a.Summary,
		SourceDuration: a.SourceDuration,
		SampleRate:     a.SampleRate,
		Runs:           a.Runs,
		AudioPath:      a.AudioPath,
		AudioName:      a.AudioName,
		PushToS3:       a.PushToS3,
		SegmentsURL:    a.SegmentsURL,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
	}
}

func cloneSegments(segments []audio.Segment) []audio.Segment {
	out := make([]audio.Segment, len(segments))
	copy(out, segments)
	return out
}
