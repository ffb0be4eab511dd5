package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// part is one piece of a generated test file: a tone or silence of some length.
type part struct {
	silent bool
	sec    float64
}

// createTestWAV renders parts into a 16kHz mono WAV using lavfi sources.
func createTestWAV(t *testing.T, outputPath string, parts []part) {
	t.Helper()

	var args []string
	var concatInputs string
	for i, p := range parts {
		src := "sine=frequency=440:sample_rate=16000:duration=" + fmt.Sprintf("%.3f", p.sec)
		if p.silent {
			src = "anullsrc=channel_layout=mono:sample_rate=16000:duration=" + fmt.Sprintf("%.3f", p.sec)
		}
		args = append(args, "-f", "lavfi", "-i", src)
		concatInputs += "[" + strconv.Itoa(i) + ":a]"
	}
	args = append(args,
		"-filter_complex", concatInputs+"concat=n="+strconv.Itoa(len(parts))+":v=0:a=1[out]",
		"-map", "[out]",
		"-ar", "16000", "-ac", "1",
		"-y", outputPath,
	)

	cmd := exec.Command("ffmpeg", args...)
	output, _ := cmd.CombinedOutput()
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Fatalf("failed to create test WAV: %s", string(output))
	}
}

func TestNewFFmpegDecoder_Defaults(t *testing.T) {
	d := NewFFmpegDecoder("", 0)
	assert.Equal(t, "ffmpeg", d.ffmpegPath)
	assert.Equal(t, DefaultSampleRate, d.SampleRate())

	d = NewFFmpegDecoder("/usr/local/bin/ffmpeg", 22050)
	assert.Equal(t, "/usr/local/bin/ffmpeg", d.ffmpegPath)
	assert.Equal(t, 22050, d.SampleRate())
}

func TestFFmpegDecoder_MissingInput(t *testing.T) {
	d := NewFFmpegDecoder("", 0)

	_, err := d.Decode(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestFFmpegDecoder_InvalidInput(t *testing.T) {
	checkFFmpeg(t)

	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0644))

	_, err := NewFFmpegDecoder("", 0).Decode(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestFFmpegDecoder_DecodeAndAnalyze(t *testing.T) {
	checkFFmpeg(t)

	path := filepath.Join(t.TempDir(), "phrases.wav")
	createTestWAV(t, path, []part{
		{sec: 4},
		{silent: true, sec: 1.5},
		{sec: 4},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	src, err := NewFFmpegDecoder("", 16000).Decode(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 16000, src.SampleRate)
	assert.InDelta(t, 9.5, src.Duration(), 0.05)

	segments, err := DetectSegments(src, DefaultAnalysisConfig())
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.InDelta(t, 4.0, segments[0].End, 0.15)
	assert.InDelta(t, 5.5, segments[1].Start, 0.15)
}

func TestParseFloat32LE(t *testing.T) {
	values := []float32{0, 0.5, -0.25, 1.5, -2, float32(math.NaN())}
	raw := make([]byte, len(values)*4+3) // trailing partial sample
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	samples := parseFloat32LE(raw)

	assert.Equal(t, []float64{0, 0.5, -0.25, 1, -1, 0}, samples)
}
