package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/doclink/internal/association"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filesDefinition() Definition {
	return Definition{
		"files": {
			Doctype: "io.cozy.files",
			Relationships: map[string]RelationshipDefinition{
				"albums": {Type: association.TagReferencedBy, Doctype: "io.cozy.photos.albums", Inverted: true},
			},
		},
		"konnectors": {
			Doctype: "io.cozy.konnectors",
			Attributes: map[string]AttributeDefinition{
				"slug": {Unique: true},
			},
			Relationships: map[string]RelationshipDefinition{
				"triggers": {Type: association.TagHasManyTriggers, Doctype: association.TriggersDoctype},
			},
		},
	}
}

func TestSchema_AddAndLookup(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(filesDefinition()))

	ds, err := s.GetDoctypeSchema("io.cozy.files")
	require.NoError(t, err)
	assert.Equal(t, "files", ds.Name)
	assert.Equal(t, []string{"albums"}, ds.RelationshipNames())

	rel, err := s.GetRelationship("io.cozy.files", "albums")
	require.NoError(t, err)
	assert.Equal(t, "albums", rel.Name)
	assert.Equal(t, "io.cozy.photos.albums", rel.Doctype)
	assert.True(t, rel.Inverted)
	assert.Equal(t, association.HasManyReferenced{}, rel.Type)

	rel, err = s.GetRelationship("io.cozy.konnectors", "triggers")
	require.NoError(t, err)
	assert.True(t, rel.Type.Forced())

	assert.Len(t, s.Doctypes(), 2)
}

func TestSchema_UnknownDoctype(t *testing.T) {
	s := New(nil)

	_, err := s.GetDoctypeSchema("io.cozy.nope")
	assert.True(t, errors.Is(err, ErrUnknownDoctype))

	_, err = s.GetRelationship("io.cozy.nope", "albums")
	assert.True(t, errors.Is(err, ErrUnknownDoctype))
}

func TestSchema_UnknownRelationship(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(filesDefinition()))

	_, err := s.GetRelationship("io.cozy.files", "parent")
	assert.True(t, errors.Is(err, ErrUnknownRelationship))
}

func TestSchema_AddDuplicateName(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(filesDefinition()))

	err := s.Add(Definition{
		"files":  {Doctype: "io.cozy.files.v2"},
		"photos": {Doctype: "io.cozy.photos"},
	})
	assert.True(t, errors.Is(err, ErrDuplicateDeclaration))

	// Nothing from the failed call is registered.
	_, err = s.GetDoctypeSchema("io.cozy.photos")
	assert.True(t, errors.Is(err, ErrUnknownDoctype))
}

func TestSchema_AddDuplicateDoctype(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(filesDefinition()))

	err := s.Add(Definition{"other": {Doctype: "io.cozy.files"}})
	assert.True(t, errors.Is(err, ErrDuplicateDeclaration))
	assert.Contains(t, err.Error(), "io.cozy.files")
}

func TestSchema_AddUnknownAssociationTag(t *testing.T) {
	s := New(nil)
	err := s.Add(Definition{
		"files": {
			Doctype: "io.cozy.files",
			Relationships: map[string]RelationshipDefinition{
				"x": {Type: "belongs-to-everything", Doctype: "io.cozy.x"},
			},
		},
	})
	assert.Error(t, err)
	assert.Empty(t, s.Doctypes())
}

func TestSchema_CustomAssociation(t *testing.T) {
	custom := &association.HasManyFiltered{
		Selector:     map[string]interface{}{"type": "invoice"},
		RelatedField: "vendor",
		OwnerField:   "slug",
	}
	s := New(nil)
	require.NoError(t, s.Add(Definition{
		"vendors": {
			Doctype: "io.cozy.vendors",
			Relationships: map[string]RelationshipDefinition{
				"invoices": {Doctype: "io.cozy.files", Association: custom},
			},
		},
	}))

	rel, err := s.GetRelationship("io.cozy.vendors", "invoices")
	require.NoError(t, err)
	assert.Same(t, custom, rel.Type)
}

type stubChecker struct {
	taken map[string]bool
	err   error
}

func (c *stubChecker) CheckUniqueness(_ context.Context, doc *models.Document, attribute string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	value, _ := doc.Get(attribute)
	s, _ := value.(string)
	return !c.taken[s], nil
}

func TestSchema_Validate(t *testing.T) {
	checker := &stubChecker{taken: map[string]bool{"trainline": true}}
	s := New(checker)
	require.NoError(t, s.Add(filesDefinition()))

	errs, err := s.Validate(context.Background(), &models.Document{
		Type:       "io.cozy.konnectors",
		Attributes: map[string]interface{}{"slug": "trainline"},
	})
	require.NoError(t, err)
	assert.Equal(t, ValidationErrors{"slug": "must be unique"}, errs)

	errs, err = s.Validate(context.Background(), &models.Document{
		Type:       "io.cozy.konnectors",
		Attributes: map[string]interface{}{"slug": "sncf"},
	})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestSchema_ValidateUndeclaredDoctype(t *testing.T) {
	s := New(&stubChecker{err: errors.New("boom")})

	errs, err := s.Validate(context.Background(), &models.Document{Type: "io.cozy.nope"})
	assert.NoError(t, err)
	assert.Nil(t, errs)
}

func TestSchema_ValidateCheckerFailure(t *testing.T) {
	s := New(&stubChecker{err: errors.New("boom")})
	require.NoError(t, s.Add(filesDefinition()))

	_, err := s.Validate(context.Background(), &models.Document{Type: "io.cozy.konnectors"})
	assert.ErrorContains(t, err, "boom")
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Doctype: "io.cozy.konnectors", Fields: ValidationErrors{"slug": "must be unique", "name": "must be unique"}}
	assert.Equal(t, "invalid io.cozy.konnectors document: name must be unique, slug must be unique", err.Error())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	content := `files:
  doctype: io.cozy.files
  relationships:
    albums:
      type: referenced-by
      doctype: io.cozy.photos.albums
      inverted: true
konnectors:
  doctype: io.cozy.konnectors
  attributes:
    slug:
      unique: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	def, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, def, 2)
	assert.Equal(t, "io.cozy.files", def["files"].Doctype)
	assert.Equal(t, RelationshipDefinition{Type: "referenced-by", Doctype: "io.cozy.photos.albums", Inverted: true}, def["files"].Relationships["albums"])
	assert.True(t, def["konnectors"].Attributes["slug"].Unique)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
