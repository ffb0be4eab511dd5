// Package audio turns decoded speech recordings into practice segments.
// It provides the Source and Segment types, the silence-driven Analyzer and
// an ffmpeg-backed decoder that produces mono float samples.
package audio

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Source is a decoded, single-channel audio signal.
// Samples are expected in the range [-1, 1]. A Source is never modified
// after decoding; the analyzer only reads it.
type Source struct {
	// SampleRate is the number of samples per second.
	SampleRate int
	// Samples holds one channel of PCM samples.
	Samples []float64
}

// Duration returns the length of the source in seconds.
func (s Source) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Segment is a contiguous time range of a source used as one practice unit.
type Segment struct {
	// Start is the segment start in seconds.
	Start float64 `json:"start"`
	// End is the segment end in seconds (exclusive).
	End float64 `json:"end"`
	// Index is the zero-based position of the segment in its list.
	Index int `json:"index"`
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Label returns the human-facing name of the segment, numbered from one.
func (s Segment) Label() string {
	return fmt.Sprintf("Segment %d", s.Index+1)
}

// String returns a human-readable representation for logging.
func (s Segment) String() string {
	return fmt.Sprintf("segment %d: %.3fs-%.3fs", s.Index, s.Start, s.End)
}

// Summary describes a segment list at a glance.
type Summary struct {
	Count          int     `json:"count"`
	TotalDuration  float64 `json:"total_duration"`
	MeanDuration   float64 `json:"mean_duration"`
	StdDevDuration float64 `json:"stddev_duration"`
	// Coverage is the fraction of the source covered by segments (0-1).
	Coverage float64 `json:"coverage"`
}

// Summarize computes duration statistics for segments taken from a source
// of the given duration.
func Summarize(segments []Segment, sourceDuration float64) Summary {
	if len(segments) == 0 {
		return Summary{}
	}

	durations := make([]float64, len(segments))
	total := 0.0
	for i, seg := range segments {
		durations[i] = seg.Duration()
		total += durations[i]
	}

	sum := Summary{
		Count:         len(segments),
		TotalDuration: total,
		MeanDuration:  stat.Mean(durations, nil),
	}
	if len(durations) > 1 {
		sum.StdDevDuration = stat.StdDev(durations, nil)
	}
	if sourceDuration > 0 {
		sum.Coverage = total / sourceDuration
	}
	return sum
}
