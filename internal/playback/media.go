package playback

// MediaHandle is a single playable media element, such as a software
// transport or a remote player. Positions are in seconds.
//
// Implementations must deliver position notifications from their own
// goroutine, never from inside Seek, Play, Pause or SetRate.
type MediaHandle interface {
	Seek(pos float64) error
	// Play starts or resumes playback. An error means the host refused to
	// start playing.
	Play() error
	Pause()
	SetRate(rate float64)
	Position() float64
	// OnPosition registers f for periodic position samples and returns a
	// function that removes it.
	OnPosition(f func(pos float64)) (cancel func())
}
