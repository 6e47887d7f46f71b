package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore lays blobs out on disk as root/<hash[:2]>/<hash[2:]>. Uploads are
// staged in dot-prefixed temp files under root, which listings skip.
type FSStore struct {
	root    string
	maxSize int64
}

// NewFSStore opens the store rooted at root. A positive maxSize rejects
// larger uploads with ErrTooLarge.
func NewFSStore(root string, maxSize int64) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root, maxSize: maxSize}, nil
}

func isHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (s *FSStore) path(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

// Put hashes r while staging it, then moves the staged file to its address.
func (s *FSStore) Put(_ context.Context, r io.Reader) (string, int64, error) {
	if s.maxSize > 0 {
		r = io.LimitReader(r, s.maxSize+1)
	}

	staged, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("stage blob: %w", err)
	}
	stagedPath := staged.Name()
	defer os.Remove(stagedPath) // no-op once renamed

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(staged, digest), r)
	if closeErr := staged.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("stage blob: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		return "", 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxSize)
	}

	hash := hex.EncodeToString(digest.Sum(nil))
	dst := s.path(hash)
	if _, err := os.Stat(dst); err == nil {
		return hash, size, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", 0, fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.Rename(stagedPath, dst); err != nil {
		return "", 0, fmt.Errorf("store blob %s: %w", hash, err)
	}
	return hash, size, nil
}

func (s *FSStore) Get(_ context.Context, hash string) (io.ReadCloser, error) {
	if !isHash(hash) {
		return nil, ErrBlobNotFound
	}
	f, err := os.Open(s.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", hash, err)
	}
	return f, nil
}

func (s *FSStore) Size(_ context.Context, hash string) (int64, error) {
	if !isHash(hash) {
		return 0, ErrBlobNotFound
	}
	info, err := os.Stat(s.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrBlobNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stat blob %s: %w", hash, err)
	}
	return info.Size(), nil
}

func (s *FSStore) Delete(_ context.Context, hash string) error {
	if !isHash(hash) {
		return nil
	}
	err := os.Remove(s.path(hash))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", hash, err)
	}
	return nil
}

// ListHashes reads the two directory levels of the layout. Entries that do
// not form a valid hash are ignored.
func (s *FSStore) ListHashes(_ context.Context) ([]string, error) {
	prefixes, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list blob root: %w", err)
	}

	var hashes []string
	for _, prefix := range prefixes {
		if !prefix.IsDir() || len(prefix.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, prefix.Name()))
		if err != nil {
			return nil, fmt.Errorf("list blob dir %s: %w", prefix.Name(), err)
		}
		for _, entry := range entries {
			if hash := prefix.Name() + entry.Name(); !entry.IsDir() && isHash(hash) {
				hashes = append(hashes, hash)
			}
		}
	}
	return hashes, nil
}

var _ BlobStore = (*FSStore)(nil)
