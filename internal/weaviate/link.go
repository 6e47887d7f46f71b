package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kilupskalvis/doclink/internal/link"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

// Properties of the objects holding documents.
const (
	propID            = "docId"
	propRev           = "docRev"
	propAttributes    = "attributes"
	propRelationships = "relationships"
)

var classProperties = []string{propID, propRev, propAttributes, propRelationships}

var (
	// ErrExists is returned when creating a document whose id is taken.
	ErrExists = errors.New("document already exists")
	// ErrConflict is returned when a write does not carry the current
	// revision.
	ErrConflict = errors.New("document update conflict")
)

// namespace seeds the name based object ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kilupskalvis/doclink"))

// ClassName maps a doctype to a Weaviate class name:
// "io.cozy.photos.albums" becomes "IoCozyPhotosAlbums".
func ClassName(doctype string) string {
	var b strings.Builder
	upper := true
	for _, r := range doctype {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if b.Len() == 0 && unicode.IsDigit(r) {
			b.WriteRune('D')
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ObjectID returns the deterministic object id of a document.
func ObjectID(doctype, id string) string {
	return uuid.NewSHA1(namespace, []byte(models.DocumentKey(doctype, id))).String()
}

// Link serves queries and mutations on its doctypes from Weaviate. Other
// operations and file uploads are forwarded.
type Link struct {
	store           ObjectStore
	doctypes        map[string]bool
	useCursor       bool
	vectorAttribute string
	logger          *zap.Logger

	mu      sync.Mutex
	classes map[string]bool
}

// Option configures a Link.
type Option func(*Link)

// WithCursor selects cursor pagination when listing classes.
func WithCursor(useCursor bool) Option {
	return func(l *Link) { l.useCursor = useCursor }
}

// WithVectorAttribute sends the named attribute as the object vector.
func WithVectorAttribute(name string) Option {
	return func(l *Link) { l.vectorAttribute = name }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// NewLink creates a Weaviate link for doctypes.
func NewLink(store ObjectStore, doctypes []string, opts ...Option) *Link {
	l := &Link{
		store:    store,
		doctypes: make(map[string]bool, len(doctypes)),
		logger:   zap.NewNop(),
		classes:  make(map[string]bool),
	}
	for _, d := range doctypes {
		l.doctypes[d] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Link) Request(ctx context.Context, op link.Operation, forward link.Forward) (*models.Response, error) {
	doctype := op.Doctype()
	if !l.doctypes[doctype] {
		return forward(ctx, op)
	}
	if op.Mutation != nil && op.Mutation.Type == models.MutationUploadFile {
		return forward(ctx, op)
	}

	if err := l.ensureClass(ctx, doctype); err != nil {
		return nil, err
	}

	if op.Query != nil {
		return l.query(ctx, op.Query)
	}
	if op.Mutation != nil {
		return l.mutate(ctx, op.Mutation)
	}
	return nil, fmt.Errorf("%w: empty operation", link.ErrUnsupportedMutation)
}

// Count returns the number of documents of doctype.
func (l *Link) Count(ctx context.Context, doctype string) (int, error) {
	return l.store.GetClassCount(ctx, ClassName(doctype))
}

func (l *Link) ensureClass(ctx context.Context, doctype string) error {
	class := ClassName(doctype)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.classes[class] {
		return nil
	}

	classes, err := l.store.GetClasses(ctx)
	if err != nil {
		return err
	}
	for _, c := range classes {
		if c == class {
			l.classes[class] = true
			return nil
		}
	}

	if err := l.store.CreateClass(ctx, class, classProperties); err != nil {
		return err
	}
	l.logger.Info("created class", zap.String("doctype", doctype), zap.String("class", class))
	l.classes[class] = true
	return nil
}

func (l *Link) query(ctx context.Context, def *query.Definition) (*models.Response, error) {
	if def.IsIDQuery() {
		var docs []*models.Document
		for _, id := range def.RequestedIDs() {
			doc, err := l.get(ctx, def.Doctype, id)
			if errors.Is(err, ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return query.Evaluate(def, docs), nil
	}

	objs, err := l.store.GetAllObjects(ctx, ClassName(def.Doctype), l.useCursor)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(objs))
	for _, obj := range objs {
		doc, err := decodeObject(def.Doctype, obj)
		if err != nil {
			l.logger.Warn("skipping undecodable object", zap.String("id", obj.ID), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return query.Evaluate(def, docs), nil
}

func (l *Link) mutate(ctx context.Context, m *models.Mutation) (*models.Response, error) {
	doc := m.Document
	if doc == nil {
		return nil, fmt.Errorf("%w: %s without document", link.ErrUnsupportedMutation, m.Type)
	}

	switch m.Type {
	case models.MutationCreate:
		created := doc.Copy()
		if created.ID == "" {
			created.ID = uuid.NewString()
		}
		if _, err := l.get(ctx, created.Type, created.ID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, created.Key())
		} else if !errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
		created.Rev = models.NextRev("")
		obj, err := l.encode(created)
		if err != nil {
			return nil, err
		}
		if err := l.store.CreateObject(ctx, obj); err != nil {
			return nil, fmt.Errorf("create %s: %w", created.Key(), err)
		}
		return models.NewSingleResponse(created), nil

	case models.MutationUpdate:
		stored, err := l.current(ctx, doc)
		if err != nil {
			return nil, err
		}
		updated := doc.Copy()
		updated.Rev = models.NextRev(stored.Rev)
		if err := l.put(ctx, updated); err != nil {
			return nil, err
		}
		return models.NewSingleResponse(updated), nil

	case models.MutationDelete:
		stored, err := l.current(ctx, doc)
		if err != nil {
			return nil, err
		}
		if err := l.store.DeleteObject(ctx, ClassName(doc.Type), ObjectID(doc.Type, doc.ID)); err != nil {
			return nil, fmt.Errorf("delete %s: %w", doc.Key(), err)
		}
		return models.NewSingleResponse(stored), nil

	case models.MutationAddReferences:
		updated := make([]*models.Document, 0, len(m.Referenced))
		for _, target := range m.Referenced {
			if !l.doctypes[target.Type] {
				return nil, fmt.Errorf("%w: %s is not stored in weaviate", link.ErrUnsupportedMutation, target.Type)
			}
			if err := l.ensureClass(ctx, target.Type); err != nil {
				return nil, err
			}
			stored, err := l.get(ctx, target.Type, target.ID)
			if err != nil {
				return nil, err
			}
			if stored.AddReferencedBy(doc.Ref()) {
				stored.Rev = models.NextRev(stored.Rev)
				if err := l.put(ctx, stored); err != nil {
					return nil, err
				}
			}
			updated = append(updated, stored)
		}
		return models.NewListResponse(updated), nil
	}
	return nil, fmt.Errorf("%w: %s", link.ErrUnsupportedMutation, m.Type)
}

// current returns the stored version of doc, checking the revision doc
// carries.
func (l *Link) current(ctx context.Context, doc *models.Document) (*models.Document, error) {
	stored, err := l.get(ctx, doc.Type, doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.Rev != "" && doc.Rev != stored.Rev {
		return nil, fmt.Errorf("%w: %s has revision %s", ErrConflict, doc.Key(), stored.Rev)
	}
	return stored, nil
}

func (l *Link) get(ctx context.Context, doctype, id string) (*models.Document, error) {
	obj, err := l.store.GetObject(ctx, ClassName(doctype), ObjectID(doctype, id))
	if err != nil {
		return nil, err
	}
	return decodeObject(doctype, obj)
}

func (l *Link) put(ctx context.Context, doc *models.Document) error {
	obj, err := l.encode(doc)
	if err != nil {
		return err
	}
	if err := l.store.UpdateObject(ctx, obj); err != nil {
		return fmt.Errorf("update %s: %w", doc.Key(), err)
	}
	return nil
}

func (l *Link) encode(doc *models.Document) (*Object, error) {
	attrs, err := json.Marshal(doc.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes of %s: %w", doc.Key(), err)
	}
	rels, err := json.Marshal(doc.Relationships)
	if err != nil {
		return nil, fmt.Errorf("encode relationships of %s: %w", doc.Key(), err)
	}

	obj := &Object{
		ID:    ObjectID(doc.Type, doc.ID),
		Class: ClassName(doc.Type),
		Properties: map[string]interface{}{
			propID:            doc.ID,
			propRev:           doc.Rev,
			propAttributes:    string(attrs),
			propRelationships: string(rels),
		},
	}
	if l.vectorAttribute != "" {
		if v, ok := doc.Get(l.vectorAttribute); ok {
			obj.Vector = attributeVector(v)
		}
	}
	return obj, nil
}

func decodeObject(doctype string, obj *Object) (*models.Document, error) {
	doc := &models.Document{Type: doctype}
	doc.ID, _ = obj.Properties[propID].(string)
	doc.Rev, _ = obj.Properties[propRev].(string)
	if doc.ID == "" {
		return nil, fmt.Errorf("object %s has no document id", obj.ID)
	}

	if attrs, _ := obj.Properties[propAttributes].(string); attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &doc.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", doc.Key(), err)
		}
	}
	if rels, _ := obj.Properties[propRelationships].(string); rels != "" {
		if err := json.Unmarshal([]byte(rels), &doc.Relationships); err != nil {
			return nil, fmt.Errorf("decode relationships of %s: %w", doc.Key(), err)
		}
	}
	return doc, nil
}

// attributeVector reads a numeric list attribute as an embedding. Any
// non-numeric element makes the whole attribute unusable.
func attributeVector(v interface{}) []float32 {
	switch vec := v.(type) {
	case []float32:
		return vec
	case []float64:
		out := make([]float32, len(vec))
		for i, f := range vec {
			out[i] = float32(f)
		}
		return out
	case []interface{}:
		if len(vec) == 0 {
			return nil
		}
		out := make([]float32, len(vec))
		for i, elem := range vec {
			switch f := elem.(type) {
			case float64:
				out[i] = float32(f)
			case float32:
				out[i] = f
			case int:
				out[i] = float32(f)
			default:
				return nil
			}
		}
		return out
	}
	return nil
}
