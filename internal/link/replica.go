package link

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"github.com/kilupskalvis/doclink/internal/replica"
	"go.uber.org/zap"
)

// pullPageSize is the number of documents requested per page when pulling
// a doctype.
const pullPageSize = 1000

// ReplicaLink serves operations on its doctypes from a local SQLite replica
// once they have been pulled. Other operations are forwarded.
type ReplicaLink struct {
	store    *replica.Store
	doctypes []string
	set      doctypeSet
	logger   *zap.Logger
}

// NewReplicaLink creates a replica link for doctypes.
func NewReplicaLink(st *replica.Store, doctypes []string, logger *zap.Logger) *ReplicaLink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicaLink{
		store:    st,
		doctypes: doctypes,
		set:      newDoctypeSet(doctypes),
		logger:   logger,
	}
}

func (l *ReplicaLink) Request(ctx context.Context, op Operation, forward Forward) (*models.Response, error) {
	doctype := op.Doctype()
	if !l.set.has(doctype) {
		return forward(ctx, op)
	}

	synced, err := l.store.IsSynced(ctx, doctype)
	if err != nil {
		return nil, err
	}
	if !synced {
		l.logger.Debug("replica not synced, forwarding", zap.String("doctype", doctype))
		return forward(ctx, op)
	}

	if op.Query != nil {
		return l.store.Query(ctx, op.Query)
	}
	if op.Mutation == nil {
		return nil, fmt.Errorf("%w: empty operation", ErrUnsupportedMutation)
	}
	if op.Mutation.Type == models.MutationUploadFile {
		return forward(ctx, op)
	}
	return l.mutate(ctx, op.Mutation)
}

func (l *ReplicaLink) mutate(ctx context.Context, m *models.Mutation) (*models.Response, error) {
	if m.Document == nil {
		return nil, fmt.Errorf("%w: %s without document", ErrUnsupportedMutation, m.Type)
	}

	var doc *models.Document
	var err error
	switch m.Type {
	case models.MutationCreate:
		doc, err = l.store.Create(ctx, m.Document)
	case models.MutationUpdate:
		doc, err = l.store.Update(ctx, m.Document)
	case models.MutationDelete:
		doc, err = l.store.Delete(ctx, m.Document)
	case models.MutationAddReferences:
		docs, err := l.store.AddReferencedBy(ctx, m.Document, m.Referenced)
		if err != nil {
			return nil, err
		}
		return models.NewListResponse(docs), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMutation, m.Type)
	}
	if err != nil {
		return nil, err
	}
	return models.NewSingleResponse(doc), nil
}

// Pull fetches every document of the link doctypes through fetch and
// replaces the replica content with them.
func (l *ReplicaLink) Pull(ctx context.Context, fetch Forward) (map[string]int, error) {
	counts := make(map[string]int, len(l.doctypes))
	for _, doctype := range l.doctypes {
		docs, err := pullDoctype(ctx, fetch, doctype)
		if err != nil {
			return counts, fmt.Errorf("pull %s: %w", doctype, err)
		}
		if err := l.store.Sync(ctx, doctype, docs); err != nil {
			return counts, err
		}
		counts[doctype] = len(docs)
	}
	return counts, nil
}

func pullDoctype(ctx context.Context, fetch Forward, doctype string) ([]*models.Document, error) {
	var docs []*models.Document
	def := query.All(doctype).LimitBy(pullPageSize)
	for skip := 0; ; {
		resp, err := fetch(ctx, QueryOperation(def.OffsetBy(skip)))
		if err != nil {
			return nil, err
		}
		docs = append(docs, resp.Data...)
		if !resp.Next || len(resp.Data) == 0 {
			return docs, nil
		}
		skip += len(resp.Data)
	}
}
