// Package core implements the doclink client: queries and mutations through
// a link chain, relationship resolution and the document store.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/doclink/internal/association"
	"github.com/kilupskalvis/doclink/internal/link"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"github.com/kilupskalvis/doclink/internal/schema"
	"go.uber.org/zap"
)

// ErrNoLinks is returned by NewClient when no link is configured.
var ErrNoLinks = errors.New("client needs at least one link")

// Options configures a Client.
type Options struct {
	Links  []link.Link
	Schema *schema.Schema
	Logger *zap.Logger
}

// Client issues queries and mutations through a chain of links and keeps
// every received document in its store.
type Client struct {
	chain  link.Forward
	schema *schema.Schema
	store  *DocumentStore
	logger *zap.Logger
}

var _ association.Client = (*Client)(nil)

// NewClient creates a client.
func NewClient(opts Options) (*Client, error) {
	if len(opts.Links) == 0 {
		return nil, ErrNoLinks
	}
	if opts.Schema == nil {
		opts.Schema = schema.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		chain:  link.Chain(opts.Links...),
		schema: opts.Schema,
		store:  NewDocumentStore(),
		logger: opts.Logger,
	}
	return c, nil
}

// Schema returns the client schema.
func (c *Client) Schema() *schema.Schema { return c.schema }

// Store returns the client document store.
func (c *Client) Store() *DocumentStore { return c.store }

// Get returns a document from the store without any request.
func (c *Client) Get(doctype, id string) *models.Document {
	return c.store.Get(doctype, id)
}

// Query executes def. When def includes relationships, they are resolved and
// the related documents are returned in the Included field.
func (c *Client) Query(ctx context.Context, def *query.Definition) (*models.Response, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.chain(ctx, link.QueryOperation(def))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Doctype, err)
	}

	if len(def.Includes) > 0 {
		rels, err := c.relationships(def)
		if err != nil {
			return nil, err
		}
		resp, err = NewFetcher(c, rels, c.logger).Fetch(ctx, resp)
		if err != nil {
			return nil, err
		}
	}

	c.store.Receive(resp)
	c.logger.Debug("query executed",
		zap.String("doctype", def.Doctype),
		zap.Int("documents", len(resp.Data)),
		zap.Int("included", len(resp.Included)))
	return resp, nil
}

func (c *Client) relationships(def *query.Definition) ([]*association.Relationship, error) {
	rels := make([]*association.Relationship, 0, len(def.Includes))
	for _, name := range def.Includes {
		rel, err := c.schema.GetRelationship(def.Doctype, name)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// Mutate executes a mutation and updates the store with its result.
func (c *Client) Mutate(ctx context.Context, m *models.Mutation) (*models.Response, error) {
	resp, err := c.chain(ctx, link.MutationOperation(m))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", m.Type, m.Doctype(), err)
	}

	if m.Type == models.MutationDelete {
		c.store.Remove(m.Document.Type, m.Document.ID)
	} else {
		c.store.Receive(resp)
	}
	c.logger.Debug("mutation executed",
		zap.String("type", string(m.Type)),
		zap.String("doctype", m.Doctype()))
	return resp, nil
}

// Save validates doc and creates it, or updates it when it already has a
// revision.
func (c *Client) Save(ctx context.Context, doc *models.Document) (*models.Response, error) {
	errs, err := c.Validate(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, &schema.ValidationError{Doctype: doc.Type, Fields: errs}
	}

	mutationType := models.MutationUpdate
	if doc.ID == "" || doc.Rev == "" {
		mutationType = models.MutationCreate
	}
	return c.Mutate(ctx, &models.Mutation{Type: mutationType, Document: doc})
}

// Destroy deletes doc.
func (c *Client) Destroy(ctx context.Context, doc *models.Document) (*models.Response, error) {
	return c.Mutate(ctx, &models.Mutation{Type: models.MutationDelete, Document: doc})
}

// AddReferencesTo records doc in the referenced_by slot of each referenced
// document.
func (c *Client) AddReferencesTo(ctx context.Context, doc *models.Document, referenced ...*models.Document) (*models.Response, error) {
	return c.Mutate(ctx, &models.Mutation{
		Type:       models.MutationAddReferences,
		Document:   doc,
		Referenced: referenced,
	})
}

// Validate checks doc against the schema of its doctype.
func (c *Client) Validate(ctx context.Context, doc *models.Document) (schema.ValidationErrors, error) {
	return c.schema.Validate(ctx, doc)
}

// CheckUniqueness reports whether no document of the doctype of doc, other
// than doc itself, holds the same value for attribute. It lets the client
// back the schema uniqueness checks. An absent attribute is always unique:
//
//	sch.SetChecker(client)
func (c *Client) CheckUniqueness(ctx context.Context, doc *models.Document, attribute string) (bool, error) {
	value, ok := doc.Get(attribute)
	if !ok {
		return true, nil
	}
	def := query.All(doc.Type).Where(query.Selector{attribute: value}).LimitBy(2)
	resp, err := c.chain(ctx, link.QueryOperation(def))
	if err != nil {
		return false, fmt.Errorf("query %s: %w", doc.Type, err)
	}
	for _, other := range resp.Data {
		if doc.ID == "" || other.ID != doc.ID {
			return false, nil
		}
	}
	return true, nil
}
