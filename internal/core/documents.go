package core

import (
	"sort"
	"sync"

	"github.com/kilupskalvis/doclink/internal/models"
)

// DocumentStore is the normalized cache of every document the client has
// seen, indexed by doctype and id.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]*models.Document
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]map[string]*models.Document)}
}

// Receive stores the documents and included documents of resp.
func (s *DocumentStore) Receive(resp *models.Response) {
	if resp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range resp.Data {
		s.put(doc)
	}
	for _, doc := range resp.Included {
		s.put(doc)
	}
}

// put replaces the stored version of doc. Relationship slots that the new
// version does not carry are kept.
func (s *DocumentStore) put(doc *models.Document) {
	if doc == nil || doc.ID == "" {
		return
	}
	byID, ok := s.docs[doc.Type]
	if !ok {
		byID = make(map[string]*models.Document)
		s.docs[doc.Type] = byID
	}

	if existing, ok := byID[doc.ID]; ok && existing != doc {
		for name, slot := range existing.Relationships {
			if doc.Relationship(name) == nil {
				if doc.Relationships == nil {
					doc.Relationships = make(map[string]*models.Relationship)
				}
				doc.Relationships[name] = slot
			}
		}
	}
	byID[doc.ID] = doc
}

// Get returns the stored document, or nil.
func (s *DocumentStore) Get(doctype, id string) *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[doctype][id]
}

// Remove drops a document.
func (s *DocumentStore) Remove(doctype, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[doctype], id)
}

// Documents returns the stored documents of a doctype sorted by id.
func (s *DocumentStore) Documents(doctype string) []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.docs[doctype]))
	for _, doc := range s.docs[doctype] {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Len returns the number of stored documents.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, byID := range s.docs {
		n += len(byID)
	}
	return n
}
