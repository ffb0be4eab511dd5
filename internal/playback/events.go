package playback

import "time"

// EventType names a scheduler lifecycle event.
type EventType string

const (
	EventSegmentStarted EventType = "segment_started"
	EventLoopCompleted  EventType = "loop_completed"
	EventSegmentEnded   EventType = "segment_ended"
	EventAllStopped     EventType = "all_stopped"
	EventPlaybackError  EventType = "playback_error"
)

// Event is emitted by the Scheduler on every lifecycle change.
type Event struct {
	Type EventType `json:"type"`
	// Index is the segment concerned, or NoSegment for EventAllStopped.
	Index int `json:"index"`
	// Loops is set for EventLoopCompleted.
	Loops      int       `json:"loops,omitempty"`
	Generation uint64    `json:"generation"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

// Listener receives scheduler events. Listeners run while the scheduler
// lock is held, in emission order, and must not call back into the
// scheduler. Hand events off to a channel if more work is needed.
type Listener func(Event)
