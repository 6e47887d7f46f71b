package association

import (
	"strings"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// HasManyInPlace resolves ids stored in an attribute named after the
// relationship. Entries are either raw ids or "doctype:id" strings.
type HasManyInPlace struct{}

func (HasManyInPlace) Query(doc *models.Document, _ Client, rel *Relationship) *Derived {
	refs := inPlaceRefs(doc, rel)
	if len(refs) == 0 {
		return nil
	}
	return &Derived{Query: query.GetByIDs(rel.Doctype, refIDs(refs)...)}
}

func (HasManyInPlace) Data(target *models.Document, c Client, rel *Relationship) []*models.Document {
	return resolve(c, inPlaceRefs(target, rel))
}

func (HasManyInPlace) Forced() bool { return false }

// HasOneInPlace resolves a single id stored in an attribute named after the
// relationship.
type HasOneInPlace struct{}

func (HasOneInPlace) Query(doc *models.Document, _ Client, rel *Relationship) *Derived {
	refs := inPlaceRefs(doc, rel)
	if len(refs) == 0 {
		return nil
	}
	return &Derived{Query: query.Get(rel.Doctype, refs[0].ID)}
}

func (HasOneInPlace) Data(target *models.Document, c Client, rel *Relationship) []*models.Document {
	refs := inPlaceRefs(target, rel)
	if len(refs) > 1 {
		refs = refs[:1]
	}
	return resolve(c, refs)
}

func (HasOneInPlace) Forced() bool { return false }

// inPlaceRefs reads the attribute rel.Name of doc as references to
// rel.Doctype. Entries qualified with another doctype are skipped.
func inPlaceRefs(doc *models.Document, rel *Relationship) []models.DocumentRef {
	raw, ok := doc.Get(rel.Name)
	if !ok {
		return nil
	}

	var values []string
	switch v := raw.(type) {
	case string:
		values = []string{v}
	case []string:
		values = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	}

	refs := make([]models.DocumentRef, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		doctype, id, qualified := strings.Cut(value, ":")
		if !qualified {
			refs = append(refs, models.DocumentRef{ID: value, Type: rel.Doctype})
			continue
		}
		if doctype != rel.Doctype {
			continue
		}
		refs = append(refs, models.DocumentRef{ID: id, Type: doctype})
	}
	return refs
}
