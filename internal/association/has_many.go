package association

import (
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// HasMany resolves references stored in the document's own relationship
// slot named after the relationship.
type HasMany struct{}

// Query returns the referenced documents directly when all of them are in
// the local store, else an ids query.
func (HasMany) Query(doc *models.Document, c Client, rel *Relationship) *Derived {
	slot := doc.Relationship(rel.Name)
	if slot == nil {
		return nil
	}
	refs := refsOfType(slot.Data, rel.Doctype)
	if len(refs) == 0 {
		return nil
	}

	known := resolve(c, refs)
	if len(known) == len(refs) {
		return &Derived{Documents: known}
	}
	return &Derived{Query: query.GetByIDs(rel.Doctype, refIDs(refs)...)}
}

func (HasMany) Data(target *models.Document, c Client, rel *Relationship) []*models.Document {
	slot := target.Relationship(rel.Name)
	if slot == nil {
		return []*models.Document{}
	}
	return resolve(c, slot.Data)
}

func (HasMany) Forced() bool { return false }

// ReferencedByKey is the relationship slot listing the documents that
// reference a document.
const ReferencedByKey = models.ReferencedByKey

// HasManyReferenced resolves the documents listed in the referenced_by slot
// of the owning document, restricted to the relationship doctype. It is
// meant for inverted relationships.
type HasManyReferenced struct{}

func (HasManyReferenced) Query(doc *models.Document, _ Client, rel *Relationship) *Derived {
	slot := doc.Relationship(ReferencedByKey)
	if slot == nil || slot.Data == nil {
		return nil
	}
	ids := refIDs(refsOfType(slot.Data, rel.Doctype))
	if len(ids) == 0 {
		return nil
	}
	return &Derived{Query: query.GetByIDs(rel.Doctype, ids...)}
}

// Data resolves the referencing documents. References that cannot be
// resolved are dropped.
func (HasManyReferenced) Data(target *models.Document, c Client, rel *Relationship) []*models.Document {
	slot := target.Relationship(ReferencedByKey)
	if slot == nil {
		return []*models.Document{}
	}
	return resolve(c, refsOfType(slot.Data, rel.Doctype))
}

func (HasManyReferenced) Forced() bool { return false }
