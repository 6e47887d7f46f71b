// Package query describes document queries, evaluates them against in-memory
// documents and reduces batches of queries to the smallest set of requests.
package query

import (
	"encoding/json"
	"errors"
	"reflect"
)

// ErrNoDoctype is returned when a definition does not name a doctype.
var ErrNoDoctype = errors.New("query definition has no doctype")

// Selector is a mango-style predicate over document attributes.
type Selector map[string]interface{}

// SortField orders results by one attribute path.
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Definition describes a read query. Definitions are treated as immutable
// values: builder methods return modified copies.
type Definition struct {
	Doctype  string      `json:"doctype"`
	ID       string      `json:"id,omitempty"`
	IDs      []string    `json:"ids,omitempty"`
	Selector Selector    `json:"selector,omitempty"`
	Sort     []SortField `json:"sort,omitempty"`
	Fields   []string    `json:"fields,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Skip     int         `json:"skip,omitempty"`
	Bookmark string      `json:"bookmark,omitempty"`
	Includes []string    `json:"includes,omitempty"`
}

// All returns a definition matching every document of doctype.
func All(doctype string) *Definition {
	return &Definition{Doctype: doctype}
}

// Get returns a definition fetching a single document by id.
func Get(doctype, id string) *Definition {
	return &Definition{Doctype: doctype, ID: id}
}

// GetByIDs returns a definition fetching documents by ids.
func GetByIDs(doctype string, ids ...string) *Definition {
	return &Definition{Doctype: doctype, IDs: ids}
}

func (d *Definition) clone() *Definition {
	c := *d
	return &c
}

// Where returns a copy with the given selector.
func (d *Definition) Where(selector Selector) *Definition {
	c := d.clone()
	c.Selector = selector
	return c
}

// Include returns a copy including the named relationships.
func (d *Definition) Include(names ...string) *Definition {
	c := d.clone()
	c.Includes = append(append([]string(nil), d.Includes...), names...)
	return c
}

// SortBy returns a copy ordered by the given fields.
func (d *Definition) SortBy(fields ...SortField) *Definition {
	c := d.clone()
	c.Sort = fields
	return c
}

// Select returns a copy projecting the given attributes.
func (d *Definition) Select(fields ...string) *Definition {
	c := d.clone()
	c.Fields = fields
	return c
}

// LimitBy returns a copy returning at most n documents.
func (d *Definition) LimitBy(n int) *Definition {
	c := d.clone()
	c.Limit = n
	return c
}

// OffsetBy returns a copy skipping the first n documents.
func (d *Definition) OffsetBy(n int) *Definition {
	c := d.clone()
	c.Skip = n
	return c
}

// OffsetBookmark returns a copy continuing from the given bookmark.
func (d *Definition) OffsetBookmark(bookmark string) *Definition {
	c := d.clone()
	c.Bookmark = bookmark
	return c
}

// IsIDQuery reports whether the definition targets documents by id.
func (d *Definition) IsIDQuery() bool {
	return d.ID != "" || len(d.IDs) > 0
}

// RequestedIDs returns the ids targeted by an id query.
func (d *Definition) RequestedIDs() []string {
	if d.ID != "" {
		return []string{d.ID}
	}
	return d.IDs
}

// Equal reports whether both definitions are structurally identical.
// Slice order matters: ids [a b] and [b a] are different queries.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return reflect.DeepEqual(*d, *other)
}

// Validate checks that the definition can be executed.
func (d *Definition) Validate() error {
	if d.Doctype == "" {
		return ErrNoDoctype
	}
	return nil
}

// Key returns a canonical encoding of the definition, suitable as a
// storage key. Equal definitions have equal keys.
func (d *Definition) Key() string {
	data, err := json.Marshal(d)
	if err != nil {
		return d.Doctype
	}
	return string(data)
}
