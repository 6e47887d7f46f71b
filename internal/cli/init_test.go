package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/doclink/internal/schema"
)

func TestWriteStarterSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas", "doclink.yaml")

	written, err := writeStarterSchema(path)
	require.NoError(t, err)
	assert.True(t, written)

	def, err := schema.LoadFile(path)
	require.NoError(t, err)
	s := schema.New(nil)
	require.NoError(t, s.Add(def))

	rel, err := s.GetRelationship("io.cozy.files", "albums")
	require.NoError(t, err)
	assert.True(t, rel.Inverted)
	assert.Equal(t, "io.cozy.photos.albums", rel.Doctype)
}

func TestWriteStarterSchema_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doclink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("custom: {}\n"), 0644))

	written, err := writeStarterSchema(path)
	require.NoError(t, err)
	assert.False(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom: {}\n", string(data))
}
