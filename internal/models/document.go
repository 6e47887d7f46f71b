// Package models defines the core data structures used throughout doclink
// including documents, relationship slots, responses and mutations.
package models

import "strings"

// Document represents a document stored in a doctype collection.
type Document struct {
	ID            string                   `json:"_id"`
	Type          string                   `json:"_type"`
	Rev           string                   `json:"_rev,omitempty"`
	Attributes    map[string]interface{}   `json:"attributes,omitempty"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
}

// DocumentRef is a lightweight pointer to a document.
type DocumentRef struct {
	ID   string `json:"_id"`
	Type string `json:"_type"`
}

// Relationship is the slot holding the references of one relationship.
type Relationship struct {
	Data []DocumentRef `json:"data"`
}

// DocumentKey returns the unique key for a document
func DocumentKey(doctype, id string) string {
	return doctype + "/" + id
}

// Key returns the identity key of the document.
func (d *Document) Key() string {
	return DocumentKey(d.Type, d.ID)
}

// Ref returns a reference pointing at the document.
func (d *Document) Ref() DocumentRef {
	return DocumentRef{ID: d.ID, Type: d.Type}
}

// SameDocument reports whether a and b have the same identity.
func SameDocument(a, b *Document) bool {
	return a.ID == b.ID && a.Type == b.Type
}

// Get returns the value at the given dotted attribute path.
// "_id", "_type" and "_rev" address the document identity fields.
func (d *Document) Get(path string) (interface{}, bool) {
	switch path {
	case "_id":
		return d.ID, true
	case "_type":
		return d.Type, true
	case "_rev":
		return d.Rev, d.Rev != ""
	}

	var cur interface{} = d.Attributes
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Relationship returns the named relationship slot, or nil.
func (d *Document) Relationship(name string) *Relationship {
	if d.Relationships == nil {
		return nil
	}
	return d.Relationships[name]
}

// SetRelationship writes the named relationship slot.
func (d *Document) SetRelationship(name string, refs []DocumentRef) {
	if d.Relationships == nil {
		d.Relationships = make(map[string]*Relationship)
	}
	if refs == nil {
		refs = []DocumentRef{}
	}
	d.Relationships[name] = &Relationship{Data: refs}
}

// Refs returns references for the given documents.
func Refs(docs []*Document) []DocumentRef {
	refs := make([]DocumentRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, doc.Ref())
	}
	return refs
}

// UniqueDocuments drops documents whose identity was already seen.
// The first occurrence wins.
func UniqueDocuments(docs []*Document) []*Document {
	seen := make(map[string]bool, len(docs))
	result := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		key := doc.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, doc)
	}
	return result
}

// ReferencedByKey is the relationship slot listing the documents that
// reference a document.
const ReferencedByKey = "referenced_by"

// AddReferencedBy records that ref references d. It reports whether the
// reference was added.
func (d *Document) AddReferencedBy(ref DocumentRef) bool {
	slot := d.Relationship(ReferencedByKey)
	if slot != nil {
		for _, existing := range slot.Data {
			if existing == ref {
				return false
			}
		}
		slot.Data = append(slot.Data, ref)
		return true
	}
	d.SetRelationship(ReferencedByKey, []DocumentRef{ref})
	return true
}

// Copy returns a copy of d whose attribute and relationship maps can be
// modified without affecting d. Nested attribute values are shared.
func (d *Document) Copy() *Document {
	c := *d
	if d.Attributes != nil {
		c.Attributes = make(map[string]interface{}, len(d.Attributes))
		for k, v := range d.Attributes {
			c.Attributes[k] = v
		}
	}
	if d.Relationships != nil {
		c.Relationships = make(map[string]*Relationship, len(d.Relationships))
		for k, v := range d.Relationships {
			if v == nil {
				c.Relationships[k] = nil
				continue
			}
			data := make([]DocumentRef, len(v.Data))
			copy(data, v.Data)
			c.Relationships[k] = &Relationship{Data: data}
		}
	}
	return &c
}
