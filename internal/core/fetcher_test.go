package core

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/doclink/internal/association"
	"github.com/kilupskalvis/doclink/internal/link"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, docs ...*models.Document) (*Client, *link.MemoryLink) {
	t.Helper()
	mem := link.NewMemoryLink(docs...)
	c, err := NewClient(Options{Links: []link.Link{mem}})
	require.NoError(t, err)
	return c, mem
}

func doc(doctype, id string, attrs map[string]interface{}) *models.Document {
	return &models.Document{ID: id, Type: doctype, Attributes: attrs}
}

func ids(docs []*models.Document) []string {
	result := make([]string, len(docs))
	for i, d := range docs {
		result[i] = d.ID
	}
	return result
}

func slotIDs(t *testing.T, d *models.Document, name string) []string {
	t.Helper()
	slot := d.Relationship(name)
	require.NotNil(t, slot, "slot %s missing on %s", name, d.ID)
	result := make([]string, len(slot.Data))
	for i, ref := range slot.Data {
		result[i] = ref.ID
	}
	return result
}

var albumsInPlace = &association.Relationship{
	Name:    "albums",
	Doctype: "albums",
	Type:    association.HasManyInPlace{},
}

func TestFetch_NoDocuments(t *testing.T) {
	c, mem := newTestClient(t)
	resp := models.NewListResponse(nil)

	out, err := NewFetcher(c, []*association.Relationship{albumsInPlace}, nil).Fetch(context.Background(), resp)

	require.NoError(t, err)
	assert.Same(t, resp, out)
	assert.Empty(t, mem.Queries())
}

func TestFetch_MergesIDQueries(t *testing.T) {
	c, mem := newTestClient(t,
		doc("albums", "a1", nil),
		doc("albums", "a2", nil),
		doc("albums", "a3", nil),
	)
	f1 := doc("files", "f1", map[string]interface{}{"albums": []interface{}{"a1", "a2"}})
	f2 := doc("files", "f2", map[string]interface{}{"albums": []interface{}{"a2"}})

	out, err := NewFetcher(c, []*association.Relationship{albumsInPlace}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1, f2}))

	require.NoError(t, err)
	queries := mem.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, query.GetByIDs("albums", "a1", "a2"), queries[0])

	assert.Equal(t, []string{"a1", "a2"}, slotIDs(t, f1, "albums"))
	assert.Equal(t, []string{"a2"}, slotIDs(t, f2, "albums"))
	assert.Equal(t, []string{"a1", "a2"}, ids(out.Included))
	assert.Equal(t, []*models.Document{f1, f2}, out.Data)
}

func TestFetch_NarrowsInRequestedOrder(t *testing.T) {
	c, _ := newTestClient(t, doc("albums", "a1", nil), doc("albums", "a2", nil))
	f1 := doc("files", "f1", map[string]interface{}{"albums": []interface{}{"a2", "a1"}})
	f2 := doc("files", "f2", map[string]interface{}{"albums": []interface{}{"a1"}})

	_, err := NewFetcher(c, []*association.Relationship{albumsInPlace}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1, f2}))

	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, slotIDs(t, f1, "albums"))
	assert.Equal(t, []string{"a1"}, slotIDs(t, f2, "albums"))
}

func TestFetch_SharedRelatedDocument(t *testing.T) {
	c, mem := newTestClient(t, doc("albums", "a1", nil))
	var files []*models.Document
	for _, id := range []string{"f1", "f2", "f3", "f4"} {
		files = append(files, doc("files", id, map[string]interface{}{"albums": []interface{}{"a1"}}))
	}

	out, err := NewFetcher(c, []*association.Relationship{albumsInPlace}, nil).
		Fetch(context.Background(), models.NewListResponse(files))

	require.NoError(t, err)
	assert.Len(t, mem.Queries(), 1)
	for _, f := range files {
		assert.Equal(t, []string{"a1"}, slotIDs(t, f, "albums"))
	}
	require.Len(t, out.Included, 1)
	assert.Equal(t, "a1", out.Included[0].ID)
}

func TestFetch_InvertedRelationshipOnlyIncluded(t *testing.T) {
	c, _ := newTestClient(t, doc("albums", "a1", nil))
	rel := &association.Relationship{
		Name:     "albums",
		Doctype:  "albums",
		Type:     association.HasManyReferenced{},
		Inverted: true,
	}
	f1 := doc("files", "f1", nil)
	f1.SetRelationship(models.ReferencedByKey, []models.DocumentRef{{ID: "a1", Type: "albums"}})

	out, err := NewFetcher(c, []*association.Relationship{rel}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1}))

	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(out.Included))
	assert.Nil(t, f1.Relationship("albums"))
	assert.NotNil(t, f1.Relationship(models.ReferencedByKey))
}

func TestFetch_ForcedAssociationFiltersPerOwner(t *testing.T) {
	trigger := func(id, worker, konnector string) *models.Document {
		return doc("io.cozy.triggers", id, map[string]interface{}{
			"worker":  worker,
			"message": map[string]interface{}{"konnector": konnector},
		})
	}
	c, mem := newTestClient(t,
		trigger("t1", "konnector", "trainline"),
		trigger("t2", "konnector", "trainline"),
		trigger("t3", "konnector", "sncf"),
		trigger("t4", "thumbnail", "trainline"),
	)
	rel := &association.Relationship{
		Name:    "triggers",
		Doctype: association.TriggersDoctype,
		Type:    association.HasManyTriggers,
	}
	k1 := doc("io.cozy.konnectors", "k1", map[string]interface{}{"slug": "trainline"})
	k2 := doc("io.cozy.konnectors", "k2", map[string]interface{}{"slug": "free"})
	k3 := doc("io.cozy.konnectors", "k3", map[string]interface{}{"slug": "sncf"})

	out, err := NewFetcher(c, []*association.Relationship{rel}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{k1, k2, k3}))

	require.NoError(t, err)
	assert.Len(t, mem.Queries(), 1)
	assert.Equal(t, []string{"t1", "t2"}, slotIDs(t, k1, "triggers"))
	assert.Equal(t, []string{}, slotIDs(t, k2, "triggers"))
	assert.Equal(t, []string{"t3"}, slotIDs(t, k3, "triggers"))
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(out.Included))
}

func TestFetch_NilDerivationLeavesEmptySlot(t *testing.T) {
	c, mem := newTestClient(t)
	f1 := doc("files", "f1", nil)

	out, err := NewFetcher(c, []*association.Relationship{albumsInPlace}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1}))

	require.NoError(t, err)
	assert.Empty(t, mem.Queries())
	assert.Equal(t, []string{}, slotIDs(t, f1, "albums"))
	assert.NotNil(t, out.Included)
	assert.Empty(t, out.Included)
}

func TestFetch_LiteralDocumentsSkipExecution(t *testing.T) {
	c, mem := newTestClient(t)
	a1 := doc("albums", "a1", nil)
	c.Store().Receive(models.NewListResponse([]*models.Document{a1}))

	rel := &association.Relationship{Name: "albums", Doctype: "albums", Type: association.HasMany{}}
	f1 := doc("files", "f1", nil)
	f1.SetRelationship("albums", []models.DocumentRef{{ID: "a1", Type: "albums"}})

	out, err := NewFetcher(c, []*association.Relationship{rel}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1}))

	require.NoError(t, err)
	assert.Empty(t, mem.Queries())
	assert.Equal(t, []*models.Document{a1}, out.Included)
	assert.Equal(t, []string{"a1"}, slotIDs(t, f1, "albums"))
}

func TestFetch_IncludedPrefersResponseIncluded(t *testing.T) {
	nested := doc("photos", "p1", nil)
	client := &stubClient{resp: &models.Response{
		Data:     []*models.Document{doc("albums", "a1", nil)},
		Included: []*models.Document{nested},
	}}
	f1 := doc("files", "f1", map[string]interface{}{"albums": []interface{}{"a1"}})

	out, err := NewFetcher(client, []*association.Relationship{albumsInPlace}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1}))

	require.NoError(t, err)
	assert.Equal(t, []*models.Document{nested}, out.Included)
	assert.Equal(t, []string{"a1"}, slotIDs(t, f1, "albums"))
}

func TestFetch_ExecutorFailureAborts(t *testing.T) {
	boom := errors.New("connection reset")
	c, mem := newTestClient(t, doc("albums", "a1", nil))
	mem.FailDoctype("albums", boom)
	f1 := doc("files", "f1", map[string]interface{}{"albums": []interface{}{"a1"}})

	out, err := NewFetcher(c, []*association.Relationship{albumsInPlace}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1}))

	assert.Nil(t, out)
	var execErr *ExecutorError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "albums", execErr.Query.Doctype)
	assert.True(t, errors.Is(err, boom))
}

func TestFetch_EveryDocumentHasRelationships(t *testing.T) {
	c, _ := newTestClient(t)
	rel := &association.Relationship{Name: "albums", Doctype: "albums", Type: association.HasManyReferenced{}, Inverted: true}
	f1 := doc("files", "f1", nil)

	_, err := NewFetcher(c, []*association.Relationship{rel}, nil).
		Fetch(context.Background(), models.NewListResponse([]*models.Document{f1}))

	require.NoError(t, err)
	assert.NotNil(t, f1.Relationships)
	assert.Nil(t, f1.Relationship("albums"))
}

// stubClient answers every query with the same response.
type stubClient struct {
	resp *models.Response
}

func (s *stubClient) Get(string, string) *models.Document { return nil }

func (s *stubClient) Query(context.Context, *query.Definition) (*models.Response, error) {
	return s.resp, nil
}
