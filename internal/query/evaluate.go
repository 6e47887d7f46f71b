package query

import (
	"sort"
	"strings"

	"github.com/kilupskalvis/doclink/internal/models"
)

// Evaluate runs the definition against an in-memory set of documents.
//
// Results keep the order of docs unless the definition sorts them. Includes
// are ignored: relationships are resolved by the caller.
func Evaluate(def *Definition, docs []*models.Document) *models.Response {
	var ids map[string]bool
	if def.IsIDQuery() {
		ids = make(map[string]bool)
		for _, id := range def.RequestedIDs() {
			ids[id] = true
		}
	}

	matched := make([]*models.Document, 0)
	for _, doc := range docs {
		if doc.Type != def.Doctype {
			continue
		}
		if ids != nil && !ids[doc.ID] {
			continue
		}
		if !def.Selector.Match(doc) {
			continue
		}
		matched = append(matched, doc)
	}

	SortDocuments(matched, def.Sort)
	total := len(matched)

	start := def.Skip
	if def.Bookmark != "" {
		for i, doc := range matched {
			if doc.ID == def.Bookmark {
				start = i + 1
				break
			}
		}
	}
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if def.Limit > 0 && start+def.Limit < total {
		end = start + def.Limit
	}
	page := Project(matched[start:end], def.Fields)

	if def.ID != "" {
		return models.NewSingleResponse(firstOrNil(page))
	}

	resp := models.NewListResponse(page)
	resp.Meta = &models.Meta{Count: total}
	resp.Next = end < total
	resp.Skip = start
	return resp
}

// SortDocuments orders docs in place by the given fields. The sort is stable.
func SortDocuments(docs []*models.Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := docs[i].Get(f.Field)
			b, _ := docs[j].Get(f.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Project returns copies of docs keeping only the given top-level
// attributes. With no fields the documents are returned as is.
func Project(docs []*models.Document, fields []string) []*models.Document {
	if len(fields) == 0 {
		return docs
	}

	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		head, _, _ := strings.Cut(f, ".")
		keep[head] = true
	}

	result := make([]*models.Document, 0, len(docs))
	for _, doc := range docs {
		projected := &models.Document{
			ID:            doc.ID,
			Type:          doc.Type,
			Rev:           doc.Rev,
			Relationships: doc.Relationships,
			Attributes:    make(map[string]interface{}),
		}
		for k, v := range doc.Attributes {
			if keep[k] {
				projected.Attributes[k] = v
			}
		}
		result = append(result, projected)
	}
	return result
}

func firstOrNil(docs []*models.Document) *models.Document {
	if len(docs) == 0 {
		return nil
	}
	return docs[0]
}
