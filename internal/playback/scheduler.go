package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/phraseloop/internal/audio"
)

// startTolerance is how far before a segment start a position sample may
// fall and still count as belonging to the freshly seeked segment.
const startTolerance = 0.05

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for backup timers and continuations.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTiming sets the loop restart, advance and backup pauses.
func WithTiming(t Timing) Option {
	return func(s *Scheduler) {
		s.timing = t
	}
}

// WithSettings sets the initial playback settings. Invalid settings are ignored.
func WithSettings(st Settings) Option {
	return func(s *Scheduler) {
		if st.Validate() == nil {
			s.settings = st
		}
	}
}

// WithListener registers a listener for scheduler events.
func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// watch is the completion watcher of one play-through of one segment.
// Its pointer identity distinguishes play-throughs within a generation.
type watch struct {
	gen     uint64
	index   int
	segment audio.Segment

	speed      float64
	infinite   bool
	loopTarget int
	continuous bool

	// seen is set once a position inside the segment was observed, so
	// samples taken before the seek cannot complete the watch.
	seen   bool
	backup Timer
}

// continuation is a pending loop restart or segment advance.
type continuation struct {
	timer Timer
}

// Scheduler plays one segment at a time on a MediaHandle, repeating it up
// to the loop target and optionally advancing through the list.
//
// All methods are safe for concurrent use. Position samples and timer
// callbacks are serialized with public calls by a single mutex.
type Scheduler struct {
	mu sync.Mutex

	media     MediaHandle
	clock     Clock
	timing    Timing
	settings  Settings
	listeners []Listener
	logger    *slog.Logger

	segments []audio.Segment
	state    State

	watch   *watch
	pending *continuation

	unsubscribe func()
}

// NewScheduler creates an idle Scheduler driving media.
func NewScheduler(media MediaHandle, opts ...Option) *Scheduler {
	s := &Scheduler{
		media:    media,
		clock:    SystemClock,
		timing:   DefaultTiming(),
		settings: DefaultSettings(),
		logger:   slog.Default(),
		state:    State{Status: StatusIdle, ActiveIndex: NoSegment},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.ContinuousMode = s.settings.ContinuousMode
	s.unsubscribe = media.OnPosition(s.handlePosition)
	return s
}

// Close stops playback and detaches from the media handle.
func (s *Scheduler) Close() {
	s.Stop()
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// State returns a snapshot of the scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Segments returns a copy of the current segment list.
func (s *Scheduler) Segments() []audio.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Settings returns the current playback settings.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the playback settings. They apply from the next
// armed segment on; a playing segment keeps its captured values.
func (s *Scheduler) SetSettings(st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	s.state.ContinuousMode = st.ContinuousMode
	return nil
}

// SetSegments replaces the segment list wholesale. Any playback is stopped
// first, so indices from the old list can never be resumed.
func (s *Scheduler) SetSegments(segments []audio.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.segments = make([]audio.Segment, len(segments))
	copy(s.segments, segments)
}

// Play starts segment index from its beginning, cancelling whatever was
// playing. Out-of-range indices are ignored.
func (s *Scheduler) Play(index int, opts PlayOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.segments) {
		s.logger.Debug("ignoring play for unknown segment",
			slog.Int("index", index),
			slog.Int("segments", len(s.segments)),
		)
		return
	}

	s.disarm()
	s.state.Generation++

	speed := opts.Speed
	if speed <= 0 {
		speed = s.settings.Speed
	}
	s.begin(index, speed, opts.InfiniteLoop)
}

// Stop pauses the media and returns to idle. Every call invalidates
// pending callbacks and emits EventAllStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	s.disarm()
	s.media.Pause()
	s.state.Generation++
	s.setStatus(StatusIdle)
	s.state.ActiveIndex = NoSegment
	s.state.LoopsCompleted = 0
	s.emit(Event{Type: EventAllStopped, Index: NoSegment})
}

// begin starts a new segment session at index, capturing the current settings.
func (s *Scheduler) begin(index int, speed float64, infinite bool) {
	w := &watch{
		gen:        s.state.Generation,
		index:      index,
		segment:    s.segments[index],
		speed:      speed,
		infinite:   infinite,
		loopTarget: s.settings.LoopTarget,
		continuous: s.settings.ContinuousMode,
	}

	if err := s.launch(w); err != nil {
		s.fail(index, err)
		return
	}

	s.setStatus(StatusPlaying)
	s.state.ActiveIndex = index
	s.state.LoopsCompleted = 0
	s.arm(w)

	s.logger.Debug("segment started",
		slog.Int("index", index),
		slog.Float64("speed", speed),
		slog.Uint64("generation", w.gen),
	)
	s.emit(Event{Type: EventSegmentStarted, Index: index})
}

// launch positions the media at the segment start and plays it.
func (s *Scheduler) launch(w *watch) error {
	s.media.SetRate(w.speed)
	if err := s.media.Seek(w.segment.Start); err != nil {
		return err
	}
	return s.media.Play()
}

// arm installs w as the current watch and starts its backup timer.
func (s *Scheduler) arm(w *watch) {
	expected := time.Duration(w.segment.Duration() / w.speed * float64(time.Second))
	w.backup = s.clock.AfterFunc(expected+s.timing.BackupSlack, func() {
		s.handleBackup(w)
	})
	s.watch = w
}

// disarm cancels the armed watch and any pending continuation.
func (s *Scheduler) disarm() {
	if s.watch != nil {
		s.watch.backup.Stop()
		s.watch = nil
	}
	if s.pending != nil {
		s.pending.timer.Stop()
		s.pending = nil
	}
}

func (s *Scheduler) current(w *watch) bool {
	return w != nil && w == s.watch && w.gen == s.state.Generation
}

func (s *Scheduler) handlePosition(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.watch
	if !s.current(w) {
		return
	}
	if !w.seen {
		if pos >= w.segment.Start-startTolerance && pos < w.segment.End {
			w.seen = true
		}
		return
	}
	if pos >= w.segment.End {
		s.complete(w)
	}
}

func (s *Scheduler) handleBackup(w *watch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(w) {
		s.logger.Debug("ignoring stale backup timer",
			slog.Int("index", w.index),
			slog.Uint64("generation", w.gen),
		)
		return
	}
	s.complete(w)
}

// complete finishes one play-through of the watched segment and decides
// whether to loop, advance or end.
func (s *Scheduler) complete(w *watch) {
	w.backup.Stop()
	s.watch = nil
	s.media.Pause()

	s.state.LoopsCompleted++
	loops := s.state.LoopsCompleted
	s.emit(Event{Type: EventLoopCompleted, Index: w.index, Loops: loops})

	switch {
	case w.infinite || loops < w.loopTarget:
		s.setStatus(StatusWaiting)
		s.schedule(w.gen, s.timing.LoopRestartDelay, func() { s.restart(w) })
	case w.continuous && w.index+1 < len(s.segments):
		s.setStatus(StatusWaiting)
		s.schedule(w.gen, s.timing.AdvanceDelay, func() { s.begin(w.index+1, w.speed, false) })
	default:
		s.setStatus(StatusIdle)
		s.state.ActiveIndex = NoSegment
		s.emit(Event{Type: EventSegmentEnded, Index: w.index})
	}
}

// restart plays the segment of w again with the same captured values.
func (s *Scheduler) restart(prev *watch) {
	w := &watch{
		gen:        prev.gen,
		index:      prev.index,
		segment:    prev.segment,
		speed:      prev.speed,
		infinite:   prev.infinite,
		loopTarget: prev.loopTarget,
		continuous: prev.continuous,
	}
	if err := s.launch(w); err != nil {
		s.fail(w.index, err)
		return
	}
	s.setStatus(StatusPlaying)
	s.arm(w)
}

// schedule runs fn after d if generation gen is still current and no other
// continuation replaced this one.
func (s *Scheduler) schedule(gen uint64, d time.Duration, fn func()) {
	c := &continuation{}
	c.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending != c || gen != s.state.Generation {
			s.logger.Debug("ignoring stale continuation", slog.Uint64("generation", gen))
			return
		}
		s.pending = nil
		fn()
	})
	s.pending = c
}

// fail reverts to idle after the media refused to play.
func (s *Scheduler) fail(index int, err error) {
	s.disarm()
	s.media.Pause()
	s.setStatus(StatusIdle)
	s.state.ActiveIndex = NoSegment
	s.state.LoopsCompleted = 0

	s.logger.Warn("playback failed",
		slog.Int("index", index),
		slog.String("error", err.Error()),
	)
	s.emit(Event{Type: EventPlaybackError, Index: index, Reason: err.Error()})
}

func (s *Scheduler) setStatus(to Status) {
	if !canTransition(s.state.Status, to) {
		s.logger.Error("unexpected scheduler transition",
			slog.String("from", string(s.state.Status)),
			slog.String("to", string(to)),
			slog.String("error", ErrInvalidTransition.Error()),
		)
	}
	s.state.Status = to
}

func (s *Scheduler) emit(e Event) {
	e.Generation = s.state.Generation
	e.Time = s.clock.Now()
	for _, l := range s.listeners {
		l(e)
	}
}
