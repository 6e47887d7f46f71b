package query

import (
	"testing"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/stretchr/testify/assert"
)

func bill(id string, attrs map[string]interface{}) *models.Document {
	return &models.Document{ID: id, Type: "io.cozy.bills", Attributes: attrs}
}

func TestSelector_ImplicitEquality(t *testing.T) {
	doc := bill("b1", map[string]interface{}{"vendor": "edf", "amount": 42.0})

	assert.True(t, Selector{"vendor": "edf"}.Match(doc))
	assert.True(t, Selector{"amount": 42}.Match(doc))
	assert.False(t, Selector{"vendor": "sfr"}.Match(doc))
	assert.False(t, Selector{"missing": "x"}.Match(doc))
	assert.True(t, Selector(nil).Match(doc))
}

func TestSelector_NestedPath(t *testing.T) {
	doc := &models.Document{
		ID:   "t1",
		Type: "io.cozy.triggers",
		Attributes: map[string]interface{}{
			"message": map[string]interface{}{"konnector": "trains"},
		},
	}

	assert.True(t, Selector{"message.konnector": "trains"}.Match(doc))
	assert.False(t, Selector{"message.konnector": "health"}.Match(doc))
}

func TestSelector_Operators(t *testing.T) {
	doc := bill("b1", map[string]interface{}{"amount": 42.0, "vendor": "edf"})

	tests := []struct {
		name     string
		selector Selector
		want     bool
	}{
		{"gt", Selector{"amount": map[string]interface{}{"$gt": 40}}, true},
		{"gte equal", Selector{"amount": map[string]interface{}{"$gte": 42}}, true},
		{"lt", Selector{"amount": map[string]interface{}{"$lt": 40}}, false},
		{"lte", Selector{"amount": map[string]interface{}{"$lte": 42.0}}, true},
		{"ne", Selector{"vendor": map[string]interface{}{"$ne": "sfr"}}, true},
		{"in", Selector{"vendor": map[string]interface{}{"$in": []interface{}{"sfr", "edf"}}}, true},
		{"nin", Selector{"vendor": map[string]interface{}{"$nin": []interface{}{"edf"}}}, false},
		{"exists", Selector{"vendor": map[string]interface{}{"$exists": true}}, true},
		{"not exists", Selector{"bills": map[string]interface{}{"$exists": false}}, true},
		{"gt across kinds", Selector{"vendor": map[string]interface{}{"$gt": 1}}, false},
		{"unknown operator", Selector{"vendor": map[string]interface{}{"$regex": "e.*"}}, false},
		{"range", Selector{"amount": map[string]interface{}{"$gt": 10, "$lt": 50}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.selector.Match(doc))
		})
	}
}

func TestSelector_Combinators(t *testing.T) {
	doc := bill("b1", map[string]interface{}{"amount": 42.0, "vendor": "edf"})

	or := Selector{"$or": []interface{}{
		map[string]interface{}{"vendor": "sfr"},
		map[string]interface{}{"amount": 42},
	}}
	and := Selector{"$and": []interface{}{
		map[string]interface{}{"vendor": "edf"},
		map[string]interface{}{"amount": 1},
	}}
	not := Selector{"$not": map[string]interface{}{"vendor": "sfr"}}

	assert.True(t, or.Match(doc))
	assert.False(t, and.Match(doc))
	assert.True(t, not.Match(doc))
}

func TestSelector_EqualityFields(t *testing.T) {
	sel := Selector{
		"class":   "image",
		"trashed": false,
		"size":    map[string]interface{}{"$eq": 10},
		"date":    map[string]interface{}{"$gt": "2020"},
		"$or":     []interface{}{},
	}

	assert.Equal(t, map[string]interface{}{"class": "image", "trashed": false, "size": 10}, sel.EqualityFields())
}
