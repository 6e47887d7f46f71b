package core

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/doclink/internal/association"
	"github.com/kilupskalvis/doclink/internal/link"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"github.com/kilupskalvis/doclink/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func photosSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New(nil)
	require.NoError(t, s.Add(schema.Definition{
		"files": {
			Doctype: "io.cozy.files",
			Relationships: map[string]schema.RelationshipDefinition{
				"albums": {Type: association.TagReferencedBy, Doctype: "io.cozy.photos.albums", Inverted: true},
				"owner":  {Type: association.TagHasOneInPlace, Doctype: "io.cozy.contacts"},
			},
		},
		"albums": {
			Doctype: "io.cozy.photos.albums",
			Attributes: map[string]schema.AttributeDefinition{
				"name": {Unique: true},
			},
		},
	}))
	return s
}

func newSchemaClient(t *testing.T, docs ...*models.Document) (*Client, *link.MemoryLink) {
	t.Helper()
	mem := link.NewMemoryLink(docs...)
	s := photosSchema(t)
	c, err := NewClient(Options{Links: []link.Link{mem}, Schema: s})
	require.NoError(t, err)
	s.SetChecker(c)
	return c, mem
}

func TestNewClient_RequiresLink(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorIs(t, err, ErrNoLinks)
}

func TestClient_QueryStoresDocuments(t *testing.T) {
	c, _ := newSchemaClient(t, doc("io.cozy.files", "f1", map[string]interface{}{"name": "a.jpg"}))

	resp, err := c.Query(context.Background(), query.All("io.cozy.files"))

	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Same(t, resp.Data[0], c.Get("io.cozy.files", "f1"))
}

func TestClient_QueryInvalidDefinition(t *testing.T) {
	c, mem := newSchemaClient(t)

	_, err := c.Query(context.Background(), &query.Definition{})

	assert.ErrorIs(t, err, query.ErrNoDoctype)
	assert.Empty(t, mem.Queries())
}

func TestClient_QueryWithIncludes(t *testing.T) {
	album := doc("io.cozy.photos.albums", "a1", map[string]interface{}{"name": "Holidays"})
	contact := doc("io.cozy.contacts", "c1", map[string]interface{}{"fullname": "Alice"})
	f1 := doc("io.cozy.files", "f1", map[string]interface{}{"owner": "c1"})
	f1.SetRelationship(models.ReferencedByKey, []models.DocumentRef{album.Ref()})
	c, mem := newSchemaClient(t, album, contact, f1)

	resp, err := c.Query(context.Background(), query.All("io.cozy.files").Include("albums", "owner"))

	require.NoError(t, err)
	assert.Len(t, mem.Queries(), 3)
	require.Len(t, resp.Data, 1)
	got := resp.Data[0]
	assert.Nil(t, got.Relationship("albums"))
	assert.Equal(t, []models.DocumentRef{contact.Ref()}, got.Relationship("owner").Data)
	assert.ElementsMatch(t, []string{"a1", "c1"}, ids(resp.Included))

	h, err := c.Hydrate(got)
	require.NoError(t, err)
	require.Len(t, h.Relations["albums"], 1)
	assert.Equal(t, "Holidays", h.Relations["albums"][0].Attributes["name"])
	require.Len(t, h.Relations["owner"], 1)
	assert.Equal(t, "c1", h.Relations["owner"][0].ID)
}

func TestClient_QueryUnknownInclude(t *testing.T) {
	c, _ := newSchemaClient(t, doc("io.cozy.files", "f1", nil))

	_, err := c.Query(context.Background(), query.All("io.cozy.files").Include("parent"))

	assert.ErrorIs(t, err, schema.ErrUnknownRelationship)
}

func TestClient_QueryUnknownDoctypeInclude(t *testing.T) {
	c, _ := newSchemaClient(t, doc("io.cozy.notes", "n1", nil))

	_, err := c.Query(context.Background(), query.All("io.cozy.notes").Include("files"))

	assert.ErrorIs(t, err, schema.ErrUnknownDoctype)
}

func TestClient_SaveCreatesThenUpdates(t *testing.T) {
	c, mem := newSchemaClient(t)

	resp, err := c.Save(context.Background(), doc("io.cozy.photos.albums", "", map[string]interface{}{"name": "Holidays"}))
	require.NoError(t, err)
	created := resp.Doc()
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Rev)
	assert.Same(t, created, c.Get("io.cozy.photos.albums", created.ID))

	update := created.Copy()
	update.Attributes["cover"] = "p1"
	resp, err = c.Save(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, "p1", resp.Doc().Attributes["cover"])
	assert.NotEqual(t, created.Rev, resp.Doc().Rev)
	assert.Len(t, mem.Documents(), 1)
}

func TestClient_SaveRejectsDuplicate(t *testing.T) {
	c, mem := newSchemaClient(t, doc("io.cozy.photos.albums", "a1", map[string]interface{}{"name": "Holidays"}))

	_, err := c.Save(context.Background(), doc("io.cozy.photos.albums", "", map[string]interface{}{"name": "Holidays"}))

	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.ValidationErrors{"name": "must be unique"}, verr.Fields)
	assert.Len(t, mem.Documents(), 1)
}

func TestClient_Destroy(t *testing.T) {
	c, mem := newSchemaClient(t, doc("io.cozy.photos.albums", "a1", nil))
	_, err := c.Query(context.Background(), query.Get("io.cozy.photos.albums", "a1"))
	require.NoError(t, err)
	require.NotNil(t, c.Get("io.cozy.photos.albums", "a1"))

	_, err = c.Destroy(context.Background(), doc("io.cozy.photos.albums", "a1", nil))

	require.NoError(t, err)
	assert.Nil(t, c.Get("io.cozy.photos.albums", "a1"))
	assert.Empty(t, mem.Documents())
}

func TestClient_AddReferencesTo(t *testing.T) {
	album := doc("io.cozy.photos.albums", "a1", nil)
	c, _ := newSchemaClient(t, album, doc("io.cozy.files", "f1", nil), doc("io.cozy.files", "f2", nil))

	resp, err := c.AddReferencesTo(context.Background(), album,
		doc("io.cozy.files", "f1", nil), doc("io.cozy.files", "f2", nil))

	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	stored := c.Get("io.cozy.files", "f2")
	require.NotNil(t, stored)
	assert.Equal(t, []models.DocumentRef{album.Ref()}, stored.Relationship(models.ReferencedByKey).Data)
}

func TestClient_MutateUnsupported(t *testing.T) {
	c, _ := newSchemaClient(t)

	_, err := c.Mutate(context.Background(), &models.Mutation{Type: "rename_everything", Document: doc("io.cozy.files", "f1", nil)})

	assert.ErrorIs(t, err, link.ErrUnsupportedMutation)
}

func TestClient_ChainExhausted(t *testing.T) {
	passthrough := link.Func(func(ctx context.Context, op link.Operation, forward link.Forward) (*models.Response, error) {
		return forward(ctx, op)
	})
	c, err := NewClient(Options{Links: []link.Link{passthrough}})
	require.NoError(t, err)

	_, err = c.Query(context.Background(), query.All("io.cozy.files"))

	assert.ErrorIs(t, err, link.ErrNoLink)
}

func TestHydrate_UnknownDoctype(t *testing.T) {
	c, _ := newSchemaClient(t)

	_, err := c.Hydrate(doc("io.cozy.notes", "n1", nil))

	assert.ErrorIs(t, err, schema.ErrUnknownDoctype)
}

func TestDocumentStore_KeepsRelationships(t *testing.T) {
	s := NewDocumentStore()
	first := doc("io.cozy.files", "f1", nil)
	first.SetRelationship("albums", []models.DocumentRef{{ID: "a1", Type: "albums"}})
	s.Receive(models.NewListResponse([]*models.Document{first}))

	second := doc("io.cozy.files", "f1", map[string]interface{}{"name": "b.jpg"})
	s.Receive(models.NewSingleResponse(second))

	got := s.Get("io.cozy.files", "f1")
	assert.Same(t, second, got)
	assert.Equal(t, "b.jpg", got.Attributes["name"])
	assert.Equal(t, []models.DocumentRef{{ID: "a1", Type: "albums"}}, got.Relationship("albums").Data)
	assert.Equal(t, 1, s.Len())

	s.Remove("io.cozy.files", "f1")
	assert.Nil(t, s.Get("io.cozy.files", "f1"))
	assert.Empty(t, s.Documents("io.cozy.files"))
}

func TestClient_CheckUniquenessSkipsAbsentAttribute(t *testing.T) {
	mem := link.NewMemoryLink(doc("io.cozy.photos.albums", "a1", map[string]interface{}{"name": nil}))
	queried := 0
	counter := link.Func(func(ctx context.Context, op link.Operation, forward link.Forward) (*models.Response, error) {
		if op.Query != nil {
			queried++
		}
		return forward(ctx, op)
	})
	c, err := NewClient(Options{Links: []link.Link{counter, mem}})
	require.NoError(t, err)

	unique, err := c.CheckUniqueness(context.Background(), doc("io.cozy.photos.albums", "", nil), "name")
	require.NoError(t, err)
	assert.True(t, unique)
	assert.Zero(t, queried)

	_, err = c.CheckUniqueness(context.Background(), doc("io.cozy.photos.albums", "", map[string]interface{}{"name": nil}), "name")
	require.NoError(t, err)
	assert.Equal(t, 1, queried, "a present null value is still checked")
}
