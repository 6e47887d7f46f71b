package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/doclink/internal/association"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type phase int

const (
	phaseIdle phase = iota
	phasePrepared
	phaseOptimized
	phaseExecuted
	phaseInjected
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phasePrepared:
		return "prepared"
	case phaseOptimized:
		return "optimized"
	case phaseExecuted:
		return "executed"
	case phaseInjected:
		return "injected"
	case phaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Fetcher resolves relationships for the documents of a response: it derives
// one request per document and relationship, reduces them with
// query.Optimize, runs what remains and writes the results back on the
// documents.
type Fetcher struct {
	client        association.Client
	relationships []*association.Relationship
	logger        *zap.Logger
}

// NewFetcher creates a fetcher resolving relationships through client.
func NewFetcher(client association.Client, relationships []*association.Relationship, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:        client,
		relationships: relationships,
		logger:        logger,
	}
}

// owned is one derived request and the document relationship it serves.
// Its index in the arena is its sequence number.
type owned struct {
	doc     *models.Document
	rel     *association.Relationship
	derived *association.Derived
}

// fetch holds the state of one Fetch call.
type fetch struct {
	*Fetcher
	phase     phase
	docs      []*models.Document
	arena     []owned
	plan      query.Plan
	groupOf   map[int]int
	responses []*models.Response
}

// Fetch resolves the relationships of resp's documents. The documents are
// modified in place. The returned response is a copy of resp carrying the
// related documents in Included. A response without documents is returned
// as is.
func (f *Fetcher) Fetch(ctx context.Context, resp *models.Response) (*models.Response, error) {
	if len(resp.Data) == 0 {
		return resp, nil
	}

	s := &fetch{Fetcher: f, docs: resp.Data}
	s.prepare()
	s.optimize()
	if err := s.execute(ctx); err != nil {
		return nil, err
	}
	s.inject()
	included := s.included()

	out := resp.Clone()
	out.Data = s.docs
	out.Included = included
	return out, nil
}

func (s *fetch) advance(from, to phase) {
	if s.phase != from {
		panic(fmt.Sprintf("fetcher: %s phase entered from %s", to, s.phase))
	}
	s.phase = to
}

func (s *fetch) prepare() {
	s.advance(phaseIdle, phasePrepared)

	forced := make(map[*association.Relationship]*association.Derived)
	for _, doc := range s.docs {
		for _, rel := range s.relationships {
			var derived *association.Derived
			if rel.Type.Forced() {
				d, ok := forced[rel]
				if !ok {
					d = rel.Type.Query(doc, s.client, rel)
					forced[rel] = d
				}
				derived = d
			} else {
				derived = rel.Type.Query(doc, s.client, rel)
			}

			if derived == nil {
				if !rel.Inverted && doc.Relationship(rel.Name) == nil {
					doc.SetRelationship(rel.Name, nil)
				}
				continue
			}
			s.arena = append(s.arena, owned{doc: doc, rel: rel, derived: derived})
		}
	}

	s.logger.Debug("relationship queries prepared",
		zap.Int("documents", len(s.docs)),
		zap.Int("relationships", len(s.relationships)),
		zap.Int("derived", len(s.arena)))
}

func (s *fetch) optimize() {
	s.advance(phasePrepared, phaseOptimized)

	entries := make([]query.Entry, 0, len(s.arena))
	for seq, o := range s.arena {
		if o.derived.Query != nil {
			entries = append(entries, query.Entry{Seq: seq, Def: o.derived.Query})
		}
	}

	s.plan = query.Optimize(entries)
	s.groupOf = s.plan.GroupIndex()

	s.logger.Debug("relationship queries optimized",
		zap.Int("queries", len(entries)),
		zap.Int("groups", len(s.plan)))
}

func (s *fetch) execute(ctx context.Context) error {
	s.advance(phaseOptimized, phaseExecuted)

	s.responses = make([]*models.Response, len(s.plan))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range s.plan {
		i, def := i, group.Query
		g.Go(func() error {
			resp, err := s.client.Query(gctx, def)
			if err != nil {
				return &ExecutorError{Query: def, Err: err}
			}
			s.responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("relationship query failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *fetch) inject() {
	s.advance(phaseExecuted, phaseInjected)

	for seq, o := range s.arena {
		if o.rel.Inverted || o.derived.Query == nil {
			continue
		}
		i, ok := s.groupOf[seq]
		if !ok || s.responses[i] == nil {
			continue
		}

		related := s.responses[i].Data
		if o.derived.Query.IsIDQuery() {
			related = narrow(related, o.rel.Doctype, o.derived.Query.RequestedIDs())
		}
		if f, ok := o.rel.Type.(association.Filterer); ok {
			related = f.Filter(o.doc, related)
		}
		o.doc.SetRelationship(o.rel.Name, models.Refs(related))
	}

	for _, doc := range s.docs {
		if doc.Relationships == nil {
			doc.Relationships = make(map[string]*models.Relationship)
		}
	}
}

// included gathers literal documents, then the documents of every response,
// keeping the first occurrence of each identity.
func (s *fetch) included() []*models.Document {
	s.advance(phaseInjected, phaseDone)

	var docs []*models.Document
	for _, o := range s.arena {
		docs = append(docs, o.derived.Documents...)
	}
	for _, resp := range s.responses {
		if len(resp.Included) > 0 {
			docs = append(docs, resp.Included...)
		} else {
			docs = append(docs, resp.Data...)
		}
	}
	return models.UniqueDocuments(docs)
}

// narrow keeps the documents of doctype whose id is in ids, in ids order.
func narrow(docs []*models.Document, doctype string, ids []string) []*models.Document {
	byID := make(map[string]*models.Document, len(docs))
	for _, doc := range docs {
		if doc.Type == doctype {
			byID[doc.ID] = doc
		}
	}
	result := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			result = append(result, doc)
		}
	}
	return result
}
