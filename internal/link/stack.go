package link

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/remote"
	"go.uber.org/zap"
)

// StackLink is the terminal link executing operations against the stack
// HTTP API.
type StackLink struct {
	client remote.StackClient
	logger *zap.Logger
}

// NewStackLink creates a stack link.
func NewStackLink(client remote.StackClient, logger *zap.Logger) *StackLink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StackLink{client: client, logger: logger}
}

func (l *StackLink) Request(ctx context.Context, op Operation, _ Forward) (*models.Response, error) {
	l.logger.Debug("stack request", zap.String("operation", op.String()))
	if op.Query != nil {
		return l.query(ctx, op)
	}
	if op.Mutation != nil {
		return l.mutate(ctx, op.Mutation)
	}
	return nil, fmt.Errorf("%w: empty operation", ErrUnsupportedMutation)
}

func (l *StackLink) query(ctx context.Context, op Operation) (*models.Response, error) {
	def := op.Query
	switch {
	case def.Doctype == remote.AppsDoctype:
		resp, err := l.client.ListApps(ctx)
		if err != nil {
			return nil, err
		}
		resp.Meta = &models.Meta{Count: len(resp.Data)}
		resp.Skip = 0
		resp.Next = false
		return resp, nil
	case def.ID != "":
		return l.client.Get(ctx, def.Doctype, def.ID)
	case len(def.IDs) > 0:
		return l.client.AllDocs(ctx, def.Doctype, def.IDs)
	}
	return l.client.Find(ctx, def.Doctype, remote.NewFindRequest(def))
}

func (l *StackLink) mutate(ctx context.Context, m *models.Mutation) (*models.Response, error) {
	doc := m.Document
	if doc == nil {
		return nil, fmt.Errorf("%w: %s without document", ErrUnsupportedMutation, m.Type)
	}

	switch m.Type {
	case models.MutationCreate:
		return l.client.Create(ctx, doc)
	case models.MutationUpdate:
		return l.client.Update(ctx, doc)
	case models.MutationDelete:
		return l.client.Delete(ctx, doc)
	case models.MutationAddReferences:
		updated := make([]*models.Document, 0, len(m.Referenced))
		for _, target := range m.Referenced {
			resp, err := l.client.AddReferencedBy(ctx, target, []models.DocumentRef{doc.Ref()})
			if err != nil {
				return nil, err
			}
			updated = append(updated, resp.Data...)
		}
		return models.NewListResponse(updated), nil
	case models.MutationUploadFile:
		name, _ := doc.Get("name")
		dirID, _ := doc.Get("dir_id")
		mime, _ := doc.Get("mime")
		return l.client.UploadFile(ctx, stringOf(dirID), stringOf(name), stringOf(mime), bytes.NewReader(m.Content))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMutation, m.Type)
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
