package playback

import (
	"sort"
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock. Timers fire in deadline order
// during Advance, including timers scheduled by other timer callbacks.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer

	// leaky makes Stop report success without preventing the callback,
	// to simulate a timer that already fired when it was cancelled.
	leaky bool
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	if !t.clock.leaky {
		t.stopped = true
	}
	return active
}

// Advance moves time forward by d, firing due timers one at a time.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// pendingTimers counts timers that would still fire.
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeMedia records calls and lets tests push position samples.
type fakeMedia struct {
	mu       sync.Mutex
	pos      float64
	rate     float64
	playing  bool
	seeks    []float64
	plays    int
	playErr  error
	seekErr  error
	listener func(float64)
}

func (m *fakeMedia) Seek(pos float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seekErr != nil {
		return m.seekErr
	}
	m.pos = pos
	m.seeks = append(m.seeks, pos)
	return nil
}

func (m *fakeMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return m.playErr
	}
	m.playing = true
	m.plays++
	return nil
}

func (m *fakeMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
}

func (m *fakeMedia) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
}

func (m *fakeMedia) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

func (m *fakeMedia) OnPosition(f func(float64)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = f
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listener = nil
	}
}

// emit delivers a position sample the way a media element would.
func (m *fakeMedia) emit(pos float64) {
	m.mu.Lock()
	m.pos = pos
	f := m.listener
	m.mu.Unlock()
	if f != nil {
		f(pos)
	}
}

func (m *fakeMedia) setPlayErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

func (m *fakeMedia) isPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *fakeMedia) currentRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// recorder collects scheduler events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// step is the comparable part of an event.
type step struct {
	Type  EventType
	Index int
	Loops int
}

func (r *recorder) steps() []step {
	events := r.all()
	out := make([]step, len(events))
	for i, e := range events {
		out[i] = step{Type: e.Type, Index: e.Index, Loops: e.Loops}
	}
	return out
}
