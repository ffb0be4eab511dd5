package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
)

// DefaultSampleRate is the decode rate used when none is configured.
// Speech energy sits well below 8kHz, so 16kHz keeps analysis cheap.
const DefaultSampleRate = 16000

var (
	// ErrInputNotFound is returned when the file to decode does not exist.
	ErrInputNotFound = errors.New("audio: input file not found")
	// ErrDecodeFailed is returned when ffmpeg exits with an error.
	ErrDecodeFailed = errors.New("audio: decode failed")
)

// Decoder turns an encoded audio file into a mono Source.
type Decoder interface {
	Decode(ctx context.Context, path string) (Source, error)
}

// FFmpegDecoder implements Decoder using the ffmpeg CLI.
type FFmpegDecoder struct {
	ffmpegPath string
	sampleRate int
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// A non-positive sampleRate falls back to DefaultSampleRate.
func NewFFmpegDecoder(ffmpegPath string, sampleRate int) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, sampleRate: sampleRate}
}

// SampleRate returns the rate the decoder resamples to.
func (d *FFmpegDecoder) SampleRate() int {
	return d.sampleRate
}

// Decode downmixes the file at path to one channel of 32-bit float PCM at the
// decoder's sample rate. Any container or codec ffmpeg understands is accepted.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Source{}, fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Source{}, ctx.Err()
		}
		return Source{}, fmt.Errorf("%w: %v, stderr: %s", ErrDecodeFailed, err, stderr.String())
	}

	return Source{
		SampleRate: d.sampleRate,
		Samples:    parseFloat32LE(stdout.Bytes()),
	}, nil
}

// parseFloat32LE converts raw little-endian float32 PCM into samples clamped
// to [-1, 1]. A trailing partial sample is dropped.
func parseFloat32LE(raw []byte) []float64 {
	samples := make([]float64, len(raw)/4)
	for i := range samples {
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		samples[i] = v
	}
	return samples
}

// Verify interface implementation at compile time.
var _ Decoder = (*FFmpegDecoder)(nil)
