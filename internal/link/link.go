// Package link implements the request chain between the client and the
// places documents live: memory, the remote stack, an offline cache, a
// local replica or a Weaviate instance.
package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

var (
	// ErrNoLink is returned when an operation reaches the end of the chain
	// without being served.
	ErrNoLink = errors.New("no link could handle the operation")
	// ErrUnsupportedMutation is returned for mutation types a link cannot
	// classify.
	ErrUnsupportedMutation = errors.New("unsupported mutation type")
)

// Operation is either a query or a mutation.
type Operation struct {
	Query    *query.Definition `json:"query,omitempty"`
	Mutation *models.Mutation  `json:"mutation,omitempty"`
}

// QueryOperation wraps a definition.
func QueryOperation(def *query.Definition) Operation {
	return Operation{Query: def}
}

// MutationOperation wraps a mutation.
func MutationOperation(m *models.Mutation) Operation {
	return Operation{Mutation: m}
}

// Doctype returns the doctype targeted by the operation.
func (op Operation) Doctype() string {
	switch {
	case op.Query != nil:
		return op.Query.Doctype
	case op.Mutation != nil:
		return op.Mutation.Doctype()
	}
	return ""
}

// Key returns a canonical encoding of the operation. Equal operations have
// equal keys.
func (op Operation) Key() string {
	data, err := json.Marshal(op)
	if err != nil {
		return op.Doctype()
	}
	return string(data)
}

func (op Operation) String() string {
	if op.Mutation != nil {
		return fmt.Sprintf("%s %s", op.Mutation.Type, op.Doctype())
	}
	return "query " + op.Doctype()
}

// Forward passes an operation to the rest of the chain.
type Forward func(ctx context.Context, op Operation) (*models.Response, error)

// Link handles an operation or forwards it.
type Link interface {
	Request(ctx context.Context, op Operation, forward Forward) (*models.Response, error)
}

// Func adapts a function to the Link interface.
type Func func(ctx context.Context, op Operation, forward Forward) (*models.Response, error)

func (f Func) Request(ctx context.Context, op Operation, forward Forward) (*models.Response, error) {
	return f(ctx, op, forward)
}

// Chain composes links in order. The returned function fails with ErrNoLink
// when the last link forwards.
func Chain(links ...Link) Forward {
	var next Forward = func(_ context.Context, op Operation) (*models.Response, error) {
		return nil, fmt.Errorf("%w: %s", ErrNoLink, op)
	}
	for i := len(links) - 1; i >= 0; i-- {
		l, forward := links[i], next
		next = func(ctx context.Context, op Operation) (*models.Response, error) {
			return l.Request(ctx, op, forward)
		}
	}
	return next
}

// doctypeSet matches operations against a configured list of doctypes.
type doctypeSet map[string]bool

func newDoctypeSet(doctypes []string) doctypeSet {
	set := make(doctypeSet, len(doctypes))
	for _, d := range doctypes {
		set[d] = true
	}
	return set
}

func (s doctypeSet) has(doctype string) bool {
	return s[doctype]
}
