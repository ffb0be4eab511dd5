// Package storage keeps uploaded recordings on local disk and exports
// analysis results to S3. It defines the Storage interface (port) and
// implementations for local disk and S3 storage.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for uploaded audio and exported results.
// Uploaded recordings live in temporary files for the lifetime of their
// analysis; segment lists may optionally be exported to S3.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename; its extension
	// is kept so decoders can probe the container format.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)

	// DeleteFromS3 removes a previously uploaded object.
	// Returns ErrS3NotConfigured if S3 is not configured.
	DeleteFromS3(ctx context.Context, key string) error
}
