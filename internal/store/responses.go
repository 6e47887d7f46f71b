package store

import (
	"encoding/json"
	"fmt"

	"github.com/kilupskalvis/doclink/internal/models"
	bolt "go.etcd.io/bbolt"
)

// SaveResponse stores the response served for the operation identified by
// key.
func (s *Store) SaveResponse(doctype, key string, resp *models.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketResponses).CreateBucketIfNotExists([]byte(doctype))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", doctype, err)
		}
		return b.Put([]byte(key), data)
	})
}

// LoadResponses returns every stored response of doctype by operation key.
func (s *Store) LoadResponses(doctype string) (map[string]*models.Response, error) {
	result := make(map[string]*models.Response)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses).Bucket([]byte(doctype))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var resp models.Response
			if err := json.Unmarshal(v, &resp); err != nil {
				return fmt.Errorf("unmarshal response %s: %w", k, err)
			}
			result[string(k)] = &resp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteResponses drops every stored response of doctype.
func (s *Store) DeleteResponses(doctype string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketResponses)
		if root.Bucket([]byte(doctype)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(doctype))
	})
}

// ResponseCounts returns the number of stored responses per doctype.
func (s *Store) ResponseCounts() (map[string]int, error) {
	counts := make(map[string]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketResponses)
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			counts[string(k)] = root.Bucket(k).Stats().KeyN
			return nil
		})
	})
	return counts, err
}
