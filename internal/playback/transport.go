package playback

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
)

// DefaultPositionInterval matches the cadence at which browsers fire
// timeupdate events.
const DefaultPositionInterval = 250 * time.Millisecond

var (
	// ErrTransportClosed is returned by a Transport after Close.
	ErrTransportClosed = errors.New("playback: transport closed")
	// ErrInvalidPosition is returned when seeking to a negative or NaN position.
	ErrInvalidPosition = errors.New("playback: invalid position")
)

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportClock sets the clock used to measure elapsed playback time
// and to schedule position samples.
func WithTransportClock(c Clock) TransportOption {
	return func(t *Transport) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithPositionInterval sets how often position samples are delivered,
// measured on the transport clock. A non-positive interval disables sampling.
func WithPositionInterval(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.interval = d
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// Transport is a MediaHandle backed by a software clock. While playing,
// the position advances by elapsed time times the rate and stops at the
// media duration.
type Transport struct {
	mu sync.Mutex

	clock    Clock
	interval time.Duration
	logger   *slog.Logger
	duration float64

	// base is the position at since; the position is extrapolated from it.
	base    float64
	since   time.Time
	rate    float64
	playing bool

	subs   map[int]func(float64)
	nextID int

	// sampler re-arms itself on clock until Close.
	sampler Timer
	closed  bool
}

// NewTransport creates a paused Transport for media of the given duration
// in seconds and starts its position sampler.
func NewTransport(duration float64, opts ...TransportOption) *Transport {
	t := &Transport{
		clock:    SystemClock,
		interval: DefaultPositionInterval,
		logger:   slog.Default(),
		duration: math.Max(duration, 0),
		rate:     1.0,
		subs:     make(map[int]func(float64)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.since = t.clock.Now()

	if t.interval > 0 {
		t.mu.Lock()
		t.sampler = t.clock.AfterFunc(t.interval, t.tick)
		t.mu.Unlock()
	}
	return t
}

// Duration returns the media duration in seconds.
func (t *Transport) Duration() float64 {
	return t.duration
}

// Seek moves the playhead. Positions past the end are clamped to the duration.
func (t *Transport) Seek(pos float64) error {
	if math.IsNaN(pos) || pos < 0 {
		return ErrInvalidPosition
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.base = math.Min(pos, t.duration)
	t.since = t.clock.Now()
	return nil
}

// Play starts advancing the playhead.
func (t *Transport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if !t.playing {
		t.since = t.clock.Now()
		t.playing = true
	}
	return nil
}

// Pause freezes the playhead at its current position.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = t.positionLocked()
	t.since = t.clock.Now()
	t.playing = false
}

// SetRate changes the playback rate. Non-positive rates are ignored.
func (t *Transport) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = t.positionLocked()
	t.since = t.clock.Now()
	t.rate = rate
}

// Rate returns the current playback rate.
func (t *Transport) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}

// Playing reports whether the playhead is advancing.
func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing && t.positionLocked() < t.duration
}

// Position returns the current playhead position in seconds.
func (t *Transport) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

func (t *Transport) positionLocked() float64 {
	if !t.playing {
		return t.base
	}
	elapsed := t.clock.Now().Sub(t.since).Seconds()
	return math.Min(t.base+elapsed*t.rate, t.duration)
}

// OnPosition registers f for position samples taken while playing.
func (t *Transport) OnPosition(f func(pos float64)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = f
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Close stops the sampler. Further Seek and Play calls fail.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.playing = false
	if t.sampler != nil {
		t.sampler.Stop()
	}
}

// tick takes one sample and schedules the next on the transport clock.
func (t *Transport) tick() {
	t.sample()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.sampler = t.clock.AfterFunc(t.interval, t.tick)
	}
}

// sample delivers the current position to subscribers. Subscribers are
// called without the transport lock held.
func (t *Transport) sample() {
	t.mu.Lock()
	if !t.playing || t.closed {
		t.mu.Unlock()
		return
	}
	pos := t.positionLocked()
	if pos >= t.duration {
		// Reached the end: behave like a media element that stopped on its own.
		t.base = t.duration
		t.playing = false
		t.logger.Debug("transport reached end of media", slog.Float64("duration", t.duration))
	}
	subs := make([]func(float64), 0, len(t.subs))
	for _, f := range t.subs {
		subs = append(subs, f)
	}
	t.mu.Unlock()

	for _, f := range subs {
		f(pos)
	}
}
