package replica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kilupskalvis/doclink/internal/models"
)

// ErrExists is returned when creating a document whose id is taken.
var ErrExists = errors.New("document already exists")

// Create stores a new document. A random id is assigned when doc has none.
func (s *Store) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	created := doc.Copy()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.Rev = models.NextRev("")

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.get(ctx, tx, created.Type, created.ID); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, created.Key())
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return s.put(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces a document. When doc carries a revision it must be the
// stored one.
func (s *Store) Update(ctx context.Context, doc *models.Document) (*models.Document, error) {
	updated := doc.Copy()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.get(ctx, tx, doc.Type, doc.ID)
		if err != nil {
			return err
		}
		if doc.Rev != "" && doc.Rev != stored.Rev {
			return fmt.Errorf("%w: %s has revision %s", ErrConflict, doc.Key(), stored.Rev)
		}
		updated.Rev = models.NextRev(stored.Rev)
		return s.put(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a document and returns its last stored version.
func (s *Store) Delete(ctx context.Context, doc *models.Document) (*models.Document, error) {
	var deleted *models.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.get(ctx, tx, doc.Type, doc.ID)
		if err != nil {
			return err
		}
		if doc.Rev != "" && doc.Rev != stored.Rev {
			return fmt.Errorf("%w: %s has revision %s", ErrConflict, doc.Key(), stored.Rev)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE doctype = ? AND id = ?`, doc.Type, doc.ID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		deleted = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// AddReferencedBy records doc in the referenced_by slot of every referenced
// document and returns their new versions.
func (s *Store) AddReferencedBy(ctx context.Context, doc *models.Document, referenced []*models.Document) ([]*models.Document, error) {
	updated := make([]*models.Document, 0, len(referenced))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, target := range referenced {
			stored, err := s.get(ctx, tx, target.Type, target.ID)
			if err != nil {
				return err
			}
			if stored.AddReferencedBy(doc.Ref()) {
				stored.Rev = models.NextRev(stored.Rev)
				if err := s.put(ctx, tx, stored); err != nil {
					return err
				}
			}
			updated = append(updated, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
