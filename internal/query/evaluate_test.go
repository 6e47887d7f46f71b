package query

import (
	"testing"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureBills() []*models.Document {
	return []*models.Document{
		bill("b1", map[string]interface{}{"vendor": "edf", "amount": 30.0}),
		bill("b2", map[string]interface{}{"vendor": "sfr", "amount": 10.0}),
		bill("b3", map[string]interface{}{"vendor": "edf", "amount": 20.0}),
		{ID: "f1", Type: "io.cozy.files"},
	}
}

func TestEvaluate_FiltersByDoctypeAndSelector(t *testing.T) {
	resp := Evaluate(All("io.cozy.bills").Where(Selector{"vendor": "edf"}), fixtureBills())

	require.Len(t, resp.Data, 2)
	assert.Equal(t, "b1", resp.Data[0].ID)
	assert.Equal(t, "b3", resp.Data[1].ID)
	assert.False(t, resp.Single)
	assert.Equal(t, 2, resp.Meta.Count)
}

func TestEvaluate_SingleID(t *testing.T) {
	resp := Evaluate(Get("io.cozy.bills", "b2"), fixtureBills())

	assert.True(t, resp.Single)
	require.NotNil(t, resp.Doc())
	assert.Equal(t, "b2", resp.Doc().ID)

	resp = Evaluate(Get("io.cozy.bills", "nope"), fixtureBills())
	assert.True(t, resp.Single)
	assert.Nil(t, resp.Doc())
}

func TestEvaluate_IDs(t *testing.T) {
	resp := Evaluate(GetByIDs("io.cozy.bills", "b3", "b1", "missing"), fixtureBills())

	require.Len(t, resp.Data, 2)
	assert.Equal(t, "b1", resp.Data[0].ID)
	assert.Equal(t, "b3", resp.Data[1].ID)
}

func TestEvaluate_SortLimitSkip(t *testing.T) {
	def := All("io.cozy.bills").SortBy(SortField{Field: "amount"}).LimitBy(2)

	resp := Evaluate(def, fixtureBills())
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "b2", resp.Data[0].ID)
	assert.Equal(t, "b3", resp.Data[1].ID)
	assert.True(t, resp.Next)

	resp = Evaluate(def.OffsetBy(2), fixtureBills())
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "b1", resp.Data[0].ID)
	assert.False(t, resp.Next)
	assert.Equal(t, 2, resp.Skip)
}

func TestEvaluate_Bookmark(t *testing.T) {
	def := All("io.cozy.bills").SortBy(SortField{Field: "amount", Desc: true}).OffsetBookmark("b1")

	resp := Evaluate(def, fixtureBills())
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "b3", resp.Data[0].ID)
	assert.Equal(t, "b2", resp.Data[1].ID)
}

func TestEvaluate_FieldsProjectionCopies(t *testing.T) {
	docs := fixtureBills()

	resp := Evaluate(All("io.cozy.bills").Select("vendor"), docs)

	require.Len(t, resp.Data, 3)
	assert.Equal(t, map[string]interface{}{"vendor": "edf"}, resp.Data[0].Attributes)
	assert.Contains(t, docs[0].Attributes, "amount")
}

func TestDefinition_BuilderReturnsCopies(t *testing.T) {
	base := All("io.cozy.files")
	withInclude := base.Include("albums")
	withMore := withInclude.Include("foos")

	assert.Empty(t, base.Includes)
	assert.Equal(t, []string{"albums"}, withInclude.Includes)
	assert.Equal(t, []string{"albums", "foos"}, withMore.Includes)
}

func TestDefinition_Equal(t *testing.T) {
	a := GetByIDs("albums", "a1", "a2")
	b := GetByIDs("albums", "a1", "a2")
	c := GetByIDs("albums", "a2", "a1")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	assert.Equal(t, a.Key(), b.Key())
}

func TestDefinition_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Definition{}).Validate(), ErrNoDoctype)
	assert.NoError(t, All("io.cozy.files").Validate())
}

func TestEvaluate_NegativeSkipStartsAtFirst(t *testing.T) {
	resp := Evaluate(All("io.cozy.bills").OffsetBy(-1).LimitBy(2), fixtureBills())

	require.Len(t, resp.Data, 2)
	assert.Equal(t, []string{"b1", "b2"}, []string{resp.Data[0].ID, resp.Data[1].ID})
	assert.Equal(t, 0, resp.Skip)
	assert.True(t, resp.Next)
}
