package link

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/store"
	"go.uber.org/zap"
)

// FallbackLink keeps the responses of queries on its doctypes so they can
// be served again when the rest of the chain cannot be reached.
type FallbackLink struct {
	store    *store.Store
	doctypes doctypeSet
	online   func() bool
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	caches map[string]*responseCache
}

// responseCache holds the parsed stored responses of a doctype.
type responseCache struct {
	loaded bool
	data   map[string]*models.Response
}

// FallbackOption configures a FallbackLink.
type FallbackOption func(*FallbackLink)

// WithOnlineCheck sets the function reporting whether the network is
// available. Without it, the link detects offline mode from transport
// errors.
func WithOnlineCheck(online func() bool) FallbackOption {
	return func(l *FallbackLink) { l.online = online }
}

// WithFallbackLogger sets the logger.
func WithFallbackLogger(logger *zap.Logger) FallbackOption {
	return func(l *FallbackLink) { l.logger = logger }
}

// NewFallbackLink creates a fallback link storing responses in st.
func NewFallbackLink(st *store.Store, doctypes []string, opts ...FallbackOption) *FallbackLink {
	l := &FallbackLink{
		store:    st,
		doctypes: newDoctypeSet(doctypes),
		online:   func() bool { return true },
		now:      time.Now,
		logger:   zap.NewNop(),
		caches:   make(map[string]*responseCache),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *FallbackLink) Request(ctx context.Context, op Operation, forward Forward) (*models.Response, error) {
	if op.Query == nil || !l.doctypes.has(op.Doctype()) {
		return forward(ctx, op)
	}

	if l.online() {
		resp, err := forward(ctx, op)
		if err == nil {
			if err := l.save(op, resp); err != nil {
				l.logger.Warn("failed to store response", zap.String("doctype", op.Doctype()), zap.Error(err))
			}
			return resp, nil
		}
		if !isNetworkError(err) {
			return nil, err
		}
		l.logger.Info("stack unreachable, serving stored response",
			zap.String("doctype", op.Doctype()), zap.Error(err))
	}

	return l.offline(op)
}

func (l *FallbackLink) offline(op Operation) (*models.Response, error) {
	responses, err := l.load(op.Doctype())
	if err != nil {
		return nil, err
	}
	if resp, ok := responses[op.Key()]; ok {
		return resp.Copy(), nil
	}
	return models.NewListResponse(nil), nil
}

func (l *FallbackLink) load(doctype string) (map[string]*models.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.caches[doctype]
	if !ok {
		c = &responseCache{}
		l.caches[doctype] = c
	}
	if !c.loaded {
		data, err := l.store.LoadResponses(doctype)
		if err != nil {
			return nil, err
		}
		c.data = data
		c.loaded = true
	}
	return c.data, nil
}

func (l *FallbackLink) save(op Operation, resp *models.Response) error {
	if err := l.store.SaveResponse(op.Doctype(), op.Key(), resp); err != nil {
		return err
	}
	if err := l.store.MarkOnline(op.Doctype(), l.now()); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.caches[op.Doctype()]; ok {
		c.loaded = false
		c.data = nil
	}
	return nil
}

// Reset drops every stored response of the link doctypes.
func (l *FallbackLink) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for doctype := range l.doctypes {
		if err := l.store.DeleteResponses(doctype); err != nil {
			return err
		}
		delete(l.caches, doctype)
	}
	return nil
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
