package link

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

func album(id, name string) *models.Document {
	return &models.Document{
		ID:         id,
		Type:       "io.cozy.photos.albums",
		Attributes: map[string]interface{}{"name": name},
	}
}

func request(t *testing.T, l Link, op Operation) *models.Response {
	t.Helper()
	resp, err := Chain(l)(context.Background(), op)
	require.NoError(t, err)
	return resp
}

func docIDs(docs []*models.Document) []string {
	result := make([]string, len(docs))
	for i, d := range docs {
		result[i] = d.ID
	}
	return result
}

func TestMemoryLink_Query(t *testing.T) {
	m := NewMemoryLink(album("a1", "Holidays"), album("a2", "Family"))

	resp := request(t, m, QueryOperation(query.All("io.cozy.photos.albums").Where(query.Selector{"name": "Family"})))
	assert.Equal(t, []string{"a2"}, docIDs(resp.Data))

	single := request(t, m, QueryOperation(query.Get("io.cozy.photos.albums", "a1")))
	assert.True(t, single.Single)
	assert.Equal(t, "a1", single.Doc().ID)

	assert.Len(t, m.Queries(), 2)
}

func TestMemoryLink_ResponsesAreCopies(t *testing.T) {
	m := NewMemoryLink(album("a1", "Holidays"))

	resp := request(t, m, QueryOperation(query.Get("io.cozy.photos.albums", "a1")))
	resp.Doc().Attributes["name"] = "changed"

	again := request(t, m, QueryOperation(query.Get("io.cozy.photos.albums", "a1")))
	assert.Equal(t, "Holidays", again.Doc().Attributes["name"])
}

func TestMemoryLink_Mutations(t *testing.T) {
	m := NewMemoryLink()

	created := request(t, m, MutationOperation(&models.Mutation{
		Type:     models.MutationCreate,
		Document: &models.Document{Type: "io.cozy.photos.albums", Attributes: map[string]interface{}{"name": "Trip"}},
	})).Doc()
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Rev)

	created.Attributes["name"] = "Road trip"
	updated := request(t, m, MutationOperation(&models.Mutation{Type: models.MutationUpdate, Document: created})).Doc()
	assert.NotEqual(t, created.Rev, updated.Rev)
	assert.Equal(t, "Road trip", m.Documents()[0].Attributes["name"])

	request(t, m, MutationOperation(&models.Mutation{Type: models.MutationDelete, Document: updated}))
	assert.Empty(t, m.Documents())
}

func TestMemoryLink_AddReferences(t *testing.T) {
	file := &models.Document{ID: "f1", Type: "io.cozy.files"}
	m := NewMemoryLink(file)

	owner := album("a1", "Holidays")
	mut := &models.Mutation{Type: models.MutationAddReferences, Document: owner, Referenced: []*models.Document{file}}

	resp := request(t, m, MutationOperation(mut))
	require.Len(t, resp.Data, 1)
	slot := resp.Data[0].Relationship(models.ReferencedByKey)
	require.NotNil(t, slot)
	assert.Equal(t, []models.DocumentRef{owner.Ref()}, slot.Data)

	// Adding the same reference twice keeps a single entry.
	resp = request(t, m, MutationOperation(mut))
	assert.Len(t, resp.Data[0].Relationship(models.ReferencedByKey).Data, 1)
}

func TestMemoryLink_Errors(t *testing.T) {
	m := NewMemoryLink(album("a1", "Holidays"))

	_, err := Chain(m)(context.Background(), MutationOperation(&models.Mutation{
		Type:     models.MutationCreate,
		Document: album("a1", "again"),
	}))
	assert.Error(t, err)

	_, err = Chain(m)(context.Background(), MutationOperation(&models.Mutation{
		Type:     "rename_document",
		Document: album("a1", "x"),
	}))
	assert.True(t, errors.Is(err, ErrUnsupportedMutation))

	boom := errors.New("boom")
	m.FailDoctype("io.cozy.photos.albums", boom)
	_, err = Chain(m)(context.Background(), QueryOperation(query.All("io.cozy.photos.albums")))
	assert.True(t, errors.Is(err, boom))
}
