package association

import (
	"reflect"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// TriggersDoctype is the doctype of konnector triggers.
const TriggersDoctype = "io.cozy.triggers"

// HasManyFiltered runs one fixed query shared by every owning document, then
// keeps the related documents whose RelatedField equals the owner's
// OwnerField.
type HasManyFiltered struct {
	Selector     query.Selector
	RelatedField string
	OwnerField   string
}

// HasManyTriggers relates a konnector to the triggers of the konnector
// worker whose message targets it.
var HasManyTriggers = &HasManyFiltered{
	Selector:     query.Selector{"worker": "konnector"},
	RelatedField: "message.konnector",
	OwnerField:   "slug",
}

func (a *HasManyFiltered) Query(_ *models.Document, _ Client, rel *Relationship) *Derived {
	return &Derived{Query: query.All(rel.Doctype).Where(a.Selector)}
}

func (a *HasManyFiltered) Data(target *models.Document, c Client, rel *Relationship) []*models.Document {
	slot := target.Relationship(rel.Name)
	if slot == nil {
		return []*models.Document{}
	}
	return a.Filter(target, resolve(c, slot.Data))
}

func (a *HasManyFiltered) Forced() bool { return true }

// Filter keeps the related documents matching the owner.
func (a *HasManyFiltered) Filter(owner *models.Document, related []*models.Document) []*models.Document {
	result := make([]*models.Document, 0, len(related))
	want, ok := owner.Get(a.OwnerField)
	if !ok {
		return result
	}
	for _, doc := range related {
		if got, ok := doc.Get(a.RelatedField); ok && reflect.DeepEqual(got, want) {
			result = append(result, doc)
		}
	}
	return result
}
