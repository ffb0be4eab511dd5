// Package playback drives looped, chained playback of audio segments against
// an asynchronous media handle.
//
// A Scheduler owns all playback bookkeeping. Every external Play or Stop bumps
// the scheduler generation; asynchronous completions (position samples, backup
// timers, loop and advance continuations) act only if they still belong to the
// current generation.
package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status is the coarse state of a Scheduler.
type Status string

const (
	// StatusIdle means no segment is armed.
	StatusIdle Status = "idle"
	// StatusPlaying means a segment is playing and its completion watch is armed.
	StatusPlaying Status = "playing"
	// StatusWaiting means a loop restart or an advance to the next segment is pending.
	StatusWaiting Status = "waiting"
)

// NoSegment is the ActiveIndex reported while idle.
const NoSegment = -1

var (
	// ErrInvalidSettings is returned when Settings violate their constraints.
	ErrInvalidSettings = errors.New("playback: invalid settings")
	// ErrInvalidTransition is returned when a scheduler status change is not allowed.
	ErrInvalidTransition = errors.New("playback: invalid state transition")
)

var validate = validator.New()

// validTransitions defines which status changes the scheduler may perform.
// Playing to Playing is an external Play replacing the active segment.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusPlaying, StatusIdle},
	StatusPlaying: {StatusPlaying, StatusWaiting, StatusIdle},
	StatusWaiting: {StatusPlaying, StatusIdle},
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

// State is a snapshot of the scheduler bookkeeping.
type State struct {
	Status Status `json:"status"`
	// ActiveIndex is the segment being played, or NoSegment.
	ActiveIndex int `json:"active_index"`
	// LoopsCompleted counts finished play-throughs of the active segment.
	LoopsCompleted int `json:"loops_completed"`
	// Generation increases on every external Play or Stop.
	Generation     uint64 `json:"generation"`
	ContinuousMode bool   `json:"continuous_mode"`
}

// Settings are the session-wide playback preferences. They may change at
// any time but are captured when a segment is armed, so an in-flight
// segment keeps the values it started with.
type Settings struct {
	// Speed is the default playback rate. Default: 1.0.
	Speed float64 `json:"speed" validate:"gte=0.25,lte=3"`
	// LoopTarget is how many times each segment plays. Default: 1.
	LoopTarget int `json:"loop_target" validate:"gte=1,lte=10"`
	// ContinuousMode advances to the next segment once the loop target is reached.
	ContinuousMode bool `json:"continuous_mode"`
}

// DefaultSettings returns single-play, normal-speed settings.
func DefaultSettings() Settings {
	return Settings{Speed: 1.0, LoopTarget: 1}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, err.Error())
	}
	return nil
}

// PlayOptions qualify a single Play call.
type PlayOptions struct {
	// Speed overrides Settings.Speed for this play. Zero or negative
	// means use the configured speed.
	Speed float64
	// InfiniteLoop repeats the segment until Stop or another Play.
	InfiniteLoop bool
}

// Timing holds the fixed pauses of the scheduler.
type Timing struct {
	// LoopRestartDelay is the pause before a segment repeats.
	LoopRestartDelay time.Duration
	// AdvanceDelay is the pause before continuous mode starts the next segment.
	AdvanceDelay time.Duration
	// BackupSlack is added to the expected segment duration when arming the
	// backup timer.
	BackupSlack time.Duration
}

// DefaultTiming returns the standard pauses: 200ms, 500ms and 100ms.
func DefaultTiming() Timing {
	return Timing{
		LoopRestartDelay: 200 * time.Millisecond,
		AdvanceDelay:     500 * time.Millisecond,
		BackupSlack:      100 * time.Millisecond,
	}
}
