// Package store keeps the client's offline state in an embedded bbolt file:
// the responses served for each doctype and the time each doctype was last
// fetched from the stack.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketResponses = []byte("responses") // one nested bucket per doctype
	bucketOnline    = []byte("online")    // doctype -> RFC 3339 time of the last online response
)

// Store is the offline database.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at dbPath along with its buckets.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open offline database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketResponses, bucketOnline} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// MarkOnline records at as the last time doctype was served by the stack.
func (s *Store) MarkOnline(doctype string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOnline).Put([]byte(doctype), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
}

// LastOnline returns the time recorded by MarkOnline, or the zero time when
// doctype was never served online.
func (s *Store) LastOnline(doctype string) (time.Time, error) {
	var at time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOnline).Get([]byte(doctype))
		if v == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return fmt.Errorf("parse last online time of %s: %w", doctype, err)
		}
		at = t
		return nil
	})
	return at, err
}
