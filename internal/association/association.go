// Package association defines how declared relationships between doctypes
// are resolved: which query fetches the related documents of a document,
// and how the fetched documents are read back.
package association

import (
	"context"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// Client is the capability surface associations need from the client.
type Client interface {
	// Get looks a document up in the local store without blocking.
	Get(doctype, id string) *models.Document
	// Query executes a definition.
	Query(ctx context.Context, def *query.Definition) (*models.Response, error)
}

// Relationship is a declared relationship of a doctype.
type Relationship struct {
	Name    string
	Doctype string // related doctype
	Type    Association
	// Inverted relationships are recorded on the related documents. Their
	// documents are returned as included but never written back on the
	// owning document.
	Inverted bool
}

// Derived is what an association needs to resolve one relationship of one
// document: either a query to run, or documents that are already known.
type Derived struct {
	Query     *query.Definition
	Documents []*models.Document
}

// Association is the strategy of one kind of relationship.
type Association interface {
	// Query derives what to fetch for doc. A nil result means the document
	// has no related documents for this relationship.
	Query(doc *models.Document, c Client, rel *Relationship) *Derived
	// Data resolves the related documents of target through the client.
	Data(target *models.Document, c Client, rel *Relationship) []*models.Document
	// Forced reports whether the derived query ignores the document content
	// and runs regardless of any reference held by the document.
	Forced() bool
}

// Filterer is implemented by associations whose query is shared by every
// owning document and narrowed afterwards.
type Filterer interface {
	Filter(owner *models.Document, related []*models.Document) []*models.Document
}

// resolve looks up refs through the client, dropping unknown documents.
func resolve(c Client, refs []models.DocumentRef) []*models.Document {
	docs := make([]*models.Document, 0, len(refs))
	for _, ref := range refs {
		if doc := c.Get(ref.Type, ref.ID); doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

func refsOfType(refs []models.DocumentRef, doctype string) []models.DocumentRef {
	result := make([]models.DocumentRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Type == doctype {
			result = append(result, ref)
		}
	}
	return result
}

func refIDs(refs []models.DocumentRef) []string {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids
}
