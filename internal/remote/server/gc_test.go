package server

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/doclink/internal/remote/blobstore"
)

func TestGarbageCollect(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, Config{})

	resp, err := ts.client.UploadFile(ctx, "root", "kept.txt", "text/plain", strings.NewReader("kept"))
	require.NoError(t, err)
	keptHash := resp.Doc().Attributes[attrHash].(string)

	orphan, _, err := ts.blobs.Put(ctx, bytes.NewReader([]byte("orphan")))
	require.NoError(t, err)

	preview, err := GarbageCollect(ctx, ts.docs, ts.blobs, true, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, preview.Orphans)
	assert.Zero(t, preview.BlobsDeleted)
	_, err = ts.blobs.Size(ctx, orphan)
	require.NoError(t, err)

	result, err := GarbageCollect(ctx, ts.docs, ts.blobs, false, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 2, result.BlobsScanned)
	assert.Equal(t, 1, result.ReferencedBlobs)
	assert.Equal(t, 1, result.BlobsDeleted)
	assert.Equal(t, []string{orphan}, result.Orphans)

	_, err = ts.blobs.Size(ctx, keptHash)
	assert.NoError(t, err)

	_, err = ts.blobs.Size(ctx, orphan)
	assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
}

func TestGarbageCollect_Empty(t *testing.T) {
	ts := newTestServer(t, Config{})

	result, err := GarbageCollect(context.Background(), ts.docs, ts.blobs, false, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, &GCResult{}, result)
}
