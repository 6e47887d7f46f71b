package core

import (
	"github.com/kilupskalvis/doclink/internal/models"
)

// HydratedDocument is a document with its declared relationships resolved
// from the store.
type HydratedDocument struct {
	*models.Document
	Relations map[string][]*models.Document
}

// Hydrate resolves every declared relationship of doc through the store.
// Relationships whose documents were never fetched resolve to the documents
// that are known, possibly none.
func (c *Client) Hydrate(doc *models.Document) (*HydratedDocument, error) {
	ds, err := c.schema.GetDoctypeSchema(doc.Type)
	if err != nil {
		return nil, err
	}

	h := &HydratedDocument{
		Document:  doc,
		Relations: make(map[string][]*models.Document, len(ds.Relationships)),
	}
	for _, name := range ds.RelationshipNames() {
		rel := ds.Relationships[name]
		h.Relations[name] = rel.Type.Data(doc, c, rel)
	}
	return h, nil
}

// HydrateAll hydrates every document of resp.
func (c *Client) HydrateAll(resp *models.Response) ([]*HydratedDocument, error) {
	result := make([]*HydratedDocument, 0, len(resp.Data))
	for _, doc := range resp.Data {
		h, err := c.Hydrate(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, nil
}
