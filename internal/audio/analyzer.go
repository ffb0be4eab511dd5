package audio

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Analyzer detects practice segments by tracking runs of low-energy windows.
// The zero value is usable and falls back to DefaultAnalyzer settings.
type Analyzer struct {
	// Window is the size of the analysis windows compared against the
	// silence threshold. Default: 100ms.
	Window time.Duration

	// SubWindow is the resolution used when searching for a quiet split
	// point inside an over-long segment. Default: 50ms.
	SubWindow time.Duration

	// SearchRadius bounds how far a split point may move away from the
	// midpoint of the segment being split. Default: 1s.
	SearchRadius time.Duration
}

// DefaultAnalyzer returns an Analyzer with the default window sizes.
func DefaultAnalyzer() Analyzer {
	return Analyzer{
		Window:       100 * time.Millisecond,
		SubWindow:    50 * time.Millisecond,
		SearchRadius: time.Second,
	}
}

// DetectSegments runs DefaultAnalyzer over src.
func DetectSegments(src Source, cfg AnalysisConfig) ([]Segment, error) {
	return DefaultAnalyzer().DetectSegments(src, cfg)
}

// span is a half-open sample range [lo, hi).
type span struct {
	lo, hi int
}

// DetectSegments splits src into an ordered, non-overlapping list of segments.
//
// The result always holds at least one segment: when no region qualifies
// (silent or empty input) the whole source is returned as a single segment.
// Output is deterministic for identical inputs.
func (a Analyzer) DetectSegments(src Source, cfg AnalysisConfig) ([]Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidSource, src.SampleRate)
	}
	a = a.withDefaults()

	rate := float64(src.SampleRate)
	total := len(src.Samples)
	if total == 0 {
		return []Segment{{Start: 0, End: 0, Index: 0}}, nil
	}

	windowSize := samplesFor(a.Window, rate)
	minSilence := samplesWithin(cfg.MinSilenceDuration, rate, total)
	minSegment := samplesWithin(cfg.MinSegmentDuration, rate, total)
	maxSegment := max(samplesWithin(cfg.MaxSegmentDuration, rate, total), 1)

	var spans []span
	segmentStart := 0
	silenceStart := 0
	inSilence := false

	for i := 0; i < total; i += windowSize {
		end := min(i+windowSize, total)
		if cfg.Energy.Of(src.Samples[i:end]) < cfg.SilenceAmplitude {
			if !inSilence {
				silenceStart = i
				inSilence = true
			}
			continue
		}

		if inSilence && i-silenceStart >= minSilence {
			switch {
			case silenceStart <= segmentStart:
				// Nothing audible yet: skip the leading silence.
				segmentStart = i
			case silenceStart-segmentStart >= minSegment:
				spans = a.split(spans, src, cfg.Energy, span{segmentStart, silenceStart}, maxSegment)
				segmentStart = i
			}
			// Shorter candidates are absorbed into the open segment.
		}
		inSilence = false
	}

	if total-segmentStart >= minSegment {
		spans = a.split(spans, src, cfg.Energy, span{segmentStart, total}, maxSegment)
	}

	if len(spans) == 0 {
		return []Segment{{Start: 0, End: src.Duration(), Index: 0}}, nil
	}

	segments := make([]Segment, len(spans))
	for i, sp := range spans {
		segments[i] = Segment{
			Start: float64(sp.lo) / rate,
			End:   float64(sp.hi) / rate,
			Index: i,
		}
	}
	return segments, nil
}

// split appends sp to dst, cutting it recursively at quiet points until no
// part is longer than maxLen samples.
func (a Analyzer) split(dst []span, src Source, measure EnergyMeasure, sp span, maxLen int) []span {
	if sp.hi-sp.lo <= maxLen {
		return append(dst, sp)
	}
	cut := a.quietestCut(src, measure, sp)
	dst = a.split(dst, src, measure, span{sp.lo, cut}, maxLen)
	return a.split(dst, src, measure, span{cut, sp.hi}, maxLen)
}

// quietestCut picks a split point near the middle of sp where the signal is
// quietest. The search is kept inside the middle half of sp so both parts
// are strictly shorter than sp.
func (a Analyzer) quietestCut(src Source, measure EnergyMeasure, sp span) int {
	rate := float64(src.SampleRate)
	length := sp.hi - sp.lo
	mid := sp.lo + length/2

	quarter := max(length/4, 1)
	radius := int(a.SearchRadius.Seconds() * rate)
	from := max(mid-radius, sp.lo+quarter)
	to := min(mid+radius, sp.hi-quarter)
	sub := samplesFor(a.SubWindow, rate)

	if to-from < sub {
		return mid
	}

	var positions []int
	var energies []float64
	for pos := from; pos+sub <= to; pos += sub {
		positions = append(positions, pos)
		energies = append(energies, measure.Of(src.Samples[pos:pos+sub]))
	}

	best := floats.MinIdx(energies)
	return positions[best] + sub/2
}

func (a Analyzer) withDefaults() Analyzer {
	def := DefaultAnalyzer()
	if a.Window <= 0 {
		a.Window = def.Window
	}
	if a.SubWindow <= 0 {
		a.SubWindow = def.SubWindow
	}
	if a.SearchRadius <= 0 {
		a.SearchRadius = def.SearchRadius
	}
	return a
}

func samplesFor(d time.Duration, rate float64) int {
	return max(int(d.Seconds()*rate), 1)
}

// samplesWithin converts sec to a sample count, capped one past total so
// oversized durations never overflow int.
func samplesWithin(sec, rate float64, total int) int {
	return int(math.Min(sec*rate, float64(total+1)))
}
