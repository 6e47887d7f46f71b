package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kilupskalvis/doclink/internal/query"
	"github.com/kilupskalvis/doclink/internal/remote"
	"github.com/kilupskalvis/doclink/internal/remote/blobstore"
	"github.com/kilupskalvis/doclink/internal/replica"
)

// GCResult reports a garbage collection run. Orphans lists the unreferenced
// hashes, deleted unless the run was a dry run.
type GCResult struct {
	BlobsScanned    int      `json:"blobs_scanned"`
	ReferencedBlobs int      `json:"referenced_blobs"`
	BlobsDeleted    int      `json:"blobs_deleted"`
	Orphans         []string `json:"orphans,omitempty"`
	DryRun          bool     `json:"dry_run,omitempty"`
}

// referencedHashes returns the content hashes named by io.cozy.files
// documents.
func referencedHashes(ctx context.Context, docs *replica.Store) (map[string]struct{}, error) {
	files, err := docs.Query(ctx, query.All(remote.FilesDoctype))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	hashes := make(map[string]struct{}, len(files.Data))
	for _, f := range files.Data {
		if hash, ok := f.Attributes[attrHash].(string); ok && hash != "" {
			hashes[hash] = struct{}{}
		}
	}
	return hashes, nil
}

// GarbageCollect deletes the blobs no file document references. With dryRun
// the orphans are only reported.
func GarbageCollect(ctx context.Context, docs *replica.Store, blobs blobstore.BlobStore, dryRun bool, logger *slog.Logger) (*GCResult, error) {
	referenced, err := referencedHashes(ctx, docs)
	if err != nil {
		return nil, err
	}
	stored, err := blobs.ListHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blob hashes: %w", err)
	}

	result := &GCResult{
		BlobsScanned:    len(stored),
		ReferencedBlobs: len(referenced),
		DryRun:          dryRun,
	}
	for _, hash := range stored {
		if _, ok := referenced[hash]; !ok {
			result.Orphans = append(result.Orphans, hash)
		}
	}
	sort.Strings(result.Orphans)

	if !dryRun {
		for _, hash := range result.Orphans {
			if err := blobs.Delete(ctx, hash); err != nil {
				logger.Warn("gc: failed to delete blob", "hash", hash, "error", err)
				continue
			}
			result.BlobsDeleted++
		}
	}

	logger.Info("gc complete",
		"scanned", result.BlobsScanned,
		"referenced", result.ReferencedBlobs,
		"orphans", len(result.Orphans),
		"deleted", result.BlobsDeleted,
		"dry_run", dryRun,
	)
	return result, nil
}
