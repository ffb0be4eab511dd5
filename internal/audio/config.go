package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"gonum.org/v1/gonum/floats"
)

// Static errors for analysis input validation.
var (
	// ErrInvalidConfig is returned when an AnalysisConfig violates its constraints.
	ErrInvalidConfig = errors.New("audio: invalid analysis config")
	// ErrInvalidSource is returned when a Source cannot be analyzed.
	ErrInvalidSource = errors.New("audio: invalid source")
)

var validate = validator.New()

// EnergyMeasure selects how the loudness of an analysis window is measured.
type EnergyMeasure string

const (
	// EnergyRMS uses the root-mean-square amplitude. It is the default.
	EnergyRMS EnergyMeasure = "rms"
	// EnergyMeanAbs uses the mean absolute amplitude.
	EnergyMeanAbs EnergyMeasure = "mean_abs"
)

// Of returns the energy of the given window. Empty windows have zero energy.
func (m EnergyMeasure) Of(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	if m == EnergyMeanAbs {
		return floats.Norm(window, 1) / float64(len(window))
	}
	return floats.Norm(window, 2) / math.Sqrt(float64(len(window)))
}

// AnalysisConfig holds the tunable thresholds of segment detection.
// All durations are in seconds.
type AnalysisConfig struct {
	// SilenceAmplitude is the energy below which a window counts as silence.
	SilenceAmplitude float64 `json:"silence_amplitude" validate:"gt=0,lt=1"`
	// MinSilenceDuration is how long silence must last to end a segment.
	MinSilenceDuration float64 `json:"min_silence_duration" validate:"gt=0"`
	// MinSegmentDuration is the shortest segment that will be emitted.
	MinSegmentDuration float64 `json:"min_segment_duration" validate:"gt=0"`
	// MaxSegmentDuration is the longest segment before it is split.
	MaxSegmentDuration float64 `json:"max_segment_duration" validate:"gtfield=MinSegmentDuration"`
	// Energy selects the window energy measure. Empty means EnergyRMS.
	Energy EnergyMeasure `json:"energy,omitempty" validate:"omitempty,oneof=rms mean_abs"`
}

// DefaultAnalysisConfig returns thresholds tuned for spoken course audio.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		SilenceAmplitude:   0.01,
		MinSilenceDuration: 1.0,
		MinSegmentDuration: 3.0,
		MaxSegmentDuration: 15.0,
		Energy:             EnergyRMS,
	}
}

// Validate checks the config before any analysis runs.
func (c AnalysisConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	return nil
}

// DBToAmplitude converts a dBFS level (e.g. -40) into a linear amplitude.
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}
