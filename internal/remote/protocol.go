// Package remote defines the protocol types and client for the document
// stack HTTP API.
package remote

import (
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// AppsDoctype is the doctype of installed applications. It is listed by a
// dedicated route instead of the data API.
const AppsDoctype = "io.cozy.apps"

// FilesDoctype is the doctype of uploaded files.
const FilesDoctype = "io.cozy.files"

// RequestIDHeader carries the id the stack assigns to each request.
const RequestIDHeader = "X-Request-ID"

// FindRequest is the body of a mango query on a doctype.
type FindRequest struct {
	Selector query.Selector   `json:"selector,omitempty"`
	Sort     []query.SortField `json:"sort,omitempty"`
	Fields   []string          `json:"fields,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Skip     int               `json:"skip,omitempty"`
	Bookmark string            `json:"bookmark,omitempty"`
}

// NewFindRequest builds the find body of def.
func NewFindRequest(def *query.Definition) *FindRequest {
	return &FindRequest{
		Selector: def.Selector,
		Sort:     def.Sort,
		Fields:   def.Fields,
		Limit:    def.Limit,
		Skip:     def.Skip,
		Bookmark: def.Bookmark,
	}
}

// Definition returns the query def of the request on doctype.
func (r *FindRequest) Definition(doctype string) *query.Definition {
	return &query.Definition{
		Doctype:  doctype,
		Selector: r.Selector,
		Sort:     r.Sort,
		Fields:   r.Fields,
		Limit:    r.Limit,
		Skip:     r.Skip,
		Bookmark: r.Bookmark,
	}
}

// AllDocsRequest fetches documents by id.
type AllDocsRequest struct {
	Keys []string `json:"keys"`
}

// ReferencesRequest lists the documents to add to a referenced_by slot.
type ReferencesRequest struct {
	Data []models.DocumentRef `json:"data"`
}

// ErrorResponse is the structured error format returned by the server.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
