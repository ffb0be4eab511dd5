package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// riffHeader is the start of a PCM WAV upload.
var riffHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "recordings")

		store, err := NewLocalStorage(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, store.TempDir())

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		store, err := NewLocalStorage("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(os.TempDir(), "phraseloop"), store.TempDir())
	})
}

func TestLocalStorage_SaveTemp(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		hint       string
		wantPrefix string
		wantExt    string
	}{
		{"keeps wav extension", "audio.wav", "audio_", ".wav"},
		{"keeps mp3 extension", "audio.mp3", "audio_", ".mp3"},
		{"no extension", "audio", "audio_", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := store.SaveTemp(ctx, tt.hint, bytes.NewReader(riffHeader))
			require.NoError(t, err)

			base := filepath.Base(path)
			assert.Equal(t, store.TempDir(), filepath.Dir(path))
			assert.True(t, strings.HasPrefix(base, tt.wantPrefix), "unexpected name %s", base)
			assert.Equal(t, tt.wantExt, filepath.Ext(base))

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, riffHeader, content)
		})
	}

	t.Run("uploads never collide", func(t *testing.T) {
		first, err := store.SaveTemp(ctx, "audio.wav", bytes.NewReader(riffHeader))
		require.NoError(t, err)
		second, err := store.SaveTemp(ctx, "audio.wav", bytes.NewReader(riffHeader))
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.SaveTemp(ctx, "audio.wav", bytes.NewReader(riffHeader))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLocalStorage_LoadTemp(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	t.Run("streams the stored recording", func(t *testing.T) {
		recording := append(append([]byte{}, riffHeader...), make([]byte, 4096)...)
		path, err := store.SaveTemp(ctx, "audio.wav", bytes.NewReader(recording))
		require.NoError(t, err)

		reader, err := store.LoadTemp(ctx, path)
		require.NoError(t, err)
		defer func() { _ = reader.Close() }()

		content, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, recording, content)
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := store.LoadTemp(ctx, filepath.Join(store.TempDir(), "audio_missing.wav"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.LoadTemp(ctx, "/some/path.wav")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLocalStorage_CleanupTemp(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	t.Run("deleting an analysis removes its recording", func(t *testing.T) {
		path, err := store.SaveTemp(ctx, "audio.mp3", bytes.NewReader(riffHeader))
		require.NoError(t, err)

		require.NoError(t, store.CleanupTemp(ctx, []string{path}))

		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
		_, err = store.LoadTemp(ctx, path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("removes several recordings", func(t *testing.T) {
		var paths []string
		for _, name := range []string{"audio.wav", "audio.mp3", "audio.ogg"} {
			path, err := store.SaveTemp(ctx, name, bytes.NewReader(riffHeader))
			require.NoError(t, err)
			paths = append(paths, path)
		}

		require.NoError(t, store.CleanupTemp(ctx, paths))
		for _, p := range paths {
			_, err := os.Stat(p)
			assert.True(t, os.IsNotExist(err), "file %s still exists", p)
		}
	})

	t.Run("ignores recordings already gone", func(t *testing.T) {
		err := store.CleanupTemp(ctx, []string{filepath.Join(store.TempDir(), "audio_gone.wav")})
		assert.NoError(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.CleanupTemp(ctx, []string{"/some/path.wav"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLocalStorage_S3Unsupported(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UploadToS3(ctx, "segments/ana-1.json", strings.NewReader(`{"segments":[]}`))
	assert.ErrorIs(t, err, ErrS3NotConfigured)
	assert.ErrorIs(t, store.DeleteFromS3(ctx, "segments/ana-1.json"), ErrS3NotConfigured)
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func randomSuffix() string {
	return time.Now().Format("20060102150405.000000000")
}
