// Package blobstore keeps the content of uploaded files, addressed by the
// hex SHA-256 of their bytes.
package blobstore

import (
	"context"
	"errors"
	"io"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrTooLarge     = errors.New("blob too large")
)

// BlobStore is content-addressed binary storage.
type BlobStore interface {
	// Put stores the bytes of r and returns their hash and size. Storing the
	// same content twice keeps one blob.
	Put(ctx context.Context, r io.Reader) (hash string, size int64, err error)

	// Get opens a blob. It fails with ErrBlobNotFound for an unknown hash.
	Get(ctx context.Context, hash string) (io.ReadCloser, error)

	// Size returns the length of a blob, or ErrBlobNotFound.
	Size(ctx context.Context, hash string) (int64, error)

	// Delete removes a blob. Unknown hashes are ignored.
	Delete(ctx context.Context, hash string) error

	// ListHashes returns the hash of every stored blob.
	ListHashes(ctx context.Context) ([]string, error)
}
