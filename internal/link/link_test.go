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

func TestChain_Order(t *testing.T) {
	var calls []string
	record := func(name string) Link {
		return Func(func(ctx context.Context, op Operation, forward Forward) (*models.Response, error) {
			calls = append(calls, name)
			return forward(ctx, op)
		})
	}
	terminal := Func(func(_ context.Context, op Operation, _ Forward) (*models.Response, error) {
		calls = append(calls, "terminal")
		return models.NewListResponse(nil), nil
	})

	resp, err := Chain(record("first"), record("second"), terminal)(context.Background(), QueryOperation(query.All("io.cozy.files")))
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Equal(t, []string{"first", "second", "terminal"}, calls)
}

func TestChain_Exhausted(t *testing.T) {
	passthrough := Func(func(ctx context.Context, op Operation, forward Forward) (*models.Response, error) {
		return forward(ctx, op)
	})

	_, err := Chain(passthrough)(context.Background(), QueryOperation(query.All("io.cozy.files")))
	assert.True(t, errors.Is(err, ErrNoLink))

	_, err = Chain()(context.Background(), QueryOperation(query.All("io.cozy.files")))
	assert.True(t, errors.Is(err, ErrNoLink))
}

func TestOperation_Key(t *testing.T) {
	a := QueryOperation(query.All("io.cozy.files").Where(query.Selector{"dir_id": "root"}))
	b := QueryOperation(query.All("io.cozy.files").Where(query.Selector{"dir_id": "root"}))
	c := QueryOperation(query.All("io.cozy.files").Where(query.Selector{"dir_id": "other"}))

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestOperation_Doctype(t *testing.T) {
	assert.Equal(t, "io.cozy.files", QueryOperation(query.Get("io.cozy.files", "f1")).Doctype())

	mut := MutationOperation(&models.Mutation{
		Type:     models.MutationCreate,
		Document: &models.Document{Type: "io.cozy.photos.albums"},
	})
	assert.Equal(t, "io.cozy.photos.albums", mut.Doctype())
	assert.Equal(t, "create_document io.cozy.photos.albums", mut.String())

	assert.Equal(t, "", Operation{}.Doctype())
}
