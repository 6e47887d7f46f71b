package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// MemoryLink serves every operation from documents held in memory. It
// records the queries it receives, which makes it the terminal link of
// choice in tests.
type MemoryLink struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	order   []string
	queries []*query.Definition
	errs    map[string]error
}

// NewMemoryLink creates a memory link holding docs.
func NewMemoryLink(docs ...*models.Document) *MemoryLink {
	m := &MemoryLink{
		docs: make(map[string]*models.Document),
		errs: make(map[string]error),
	}
	for _, doc := range docs {
		m.put(doc)
	}
	return m
}

// Add stores documents.
func (m *MemoryLink) Add(docs ...*models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.put(doc)
	}
}

// FailDoctype makes queries and mutations on doctype fail with err.
func (m *MemoryLink) FailDoctype(doctype string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[doctype] = err
}

// Queries returns the queries received so far.
func (m *MemoryLink) Queries() []*query.Definition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*query.Definition(nil), m.queries...)
}

// Documents returns the stored documents in insertion order.
func (m *MemoryLink) Documents() []*models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all()
}

func (m *MemoryLink) Request(_ context.Context, op Operation, _ Forward) (*models.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.errs[op.Doctype()]; ok {
		return nil, err
	}

	if op.Query != nil {
		m.queries = append(m.queries, op.Query)
		resp := query.Evaluate(op.Query, m.all())
		for i, doc := range resp.Data {
			resp.Data[i] = doc.Copy()
		}
		return resp, nil
	}
	if op.Mutation != nil {
		return m.mutate(op.Mutation)
	}
	return nil, fmt.Errorf("%w: empty operation", ErrUnsupportedMutation)
}

func (m *MemoryLink) mutate(mut *models.Mutation) (*models.Response, error) {
	doc := mut.Document
	if doc == nil {
		return nil, fmt.Errorf("%w: %s without document", ErrUnsupportedMutation, mut.Type)
	}

	switch mut.Type {
	case models.MutationCreate:
		created := doc.Copy()
		if created.ID == "" {
			created.ID = uuid.NewString()
		}
		if _, exists := m.docs[created.Key()]; exists {
			return nil, fmt.Errorf("document %s already exists", created.Key())
		}
		created.Rev = models.NextRev(created.Rev)
		m.put(created)
		return models.NewSingleResponse(created.Copy()), nil

	case models.MutationUpdate:
		if _, ok := m.docs[doc.Key()]; !ok {
			return nil, fmt.Errorf("document %s not found", doc.Key())
		}
		updated := doc.Copy()
		updated.Rev = models.NextRev(updated.Rev)
		m.put(updated)
		return models.NewSingleResponse(updated.Copy()), nil

	case models.MutationDelete:
		key := doc.Key()
		existing, ok := m.docs[key]
		if !ok {
			return nil, fmt.Errorf("document %s not found", key)
		}
		delete(m.docs, key)
		for i, k := range m.order {
			if k == key {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		return models.NewSingleResponse(existing), nil

	case models.MutationAddReferences:
		updated := make([]*models.Document, 0, len(mut.Referenced))
		for _, target := range mut.Referenced {
			stored, ok := m.docs[target.Key()]
			if !ok {
				return nil, fmt.Errorf("document %s not found", target.Key())
			}
			if stored.AddReferencedBy(doc.Ref()) {
				stored.Rev = models.NextRev(stored.Rev)
			}
			updated = append(updated, stored.Copy())
		}
		return models.NewListResponse(updated), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMutation, mut.Type)
}

func (m *MemoryLink) put(doc *models.Document) {
	key := doc.Key()
	if _, ok := m.docs[key]; !ok {
		m.order = append(m.order, key)
	}
	m.docs[key] = doc
}

func (m *MemoryLink) all() []*models.Document {
	docs := make([]*models.Document, 0, len(m.order))
	for _, key := range m.order {
		docs = append(docs, m.docs[key])
	}
	return docs
}
