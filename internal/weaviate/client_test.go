package weaviate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("1.25.3")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Major)
	assert.Equal(t, 25, v.Minor)
	assert.Equal(t, 3, v.Patch)
	assert.True(t, v.SupportsCursor())

	old, err := parseVersion("v1.17.0-rc.1")
	require.NoError(t, err)
	assert.Equal(t, 17, old.Minor)
	assert.False(t, old.SupportsCursor())

	_, err = parseVersion("latest")
	assert.Error(t, err)
	_, err = parseVersion("1.x.0")
	assert.Error(t, err)
}

func TestNewClient_URLs(t *testing.T) {
	_, err := NewClient("localhost:8080")
	assert.NoError(t, err)
	_, err = NewClient("https://weaviate.example.com")
	assert.NoError(t, err)
	_, err = NewClient("ftp://weaviate.example.com")
	assert.Error(t, err)
}

func TestAttributeVector(t *testing.T) {
	assert.Nil(t, attributeVector(nil))
	assert.Nil(t, attributeVector("text"))
	assert.Nil(t, attributeVector([]interface{}{}))
	assert.Nil(t, attributeVector([]interface{}{"x"}))
	assert.Equal(t, []float32{1, 2}, attributeVector([]float64{1, 2}))
	assert.Equal(t, []float32{1, 2}, attributeVector([]interface{}{1.0, 2}))
}

func TestDecodeAPIObject(t *testing.T) {
	obj := decodeAPIObject(map[string]interface{}{
		"id":         "0b3c5a1e-1111-4c1d-9e1a-000000000001",
		"class":      "IoCozyFiles",
		"properties": map[string]interface{}{"docId": "f1"},
		"vector":     []float64{0.25},
	})
	require.NotNil(t, obj)
	assert.Equal(t, "IoCozyFiles", obj.Class)
	assert.Equal(t, "f1", obj.Properties["docId"])
	assert.Equal(t, []float32{0.25}, obj.Vector)
}
