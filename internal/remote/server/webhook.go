package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/doclink/internal/models"
)

// Document change events.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// eventHeader repeats the event name so receivers can route without parsing
// the body.
const eventHeader = "X-Doclink-Event"

// WebhookEvent is the JSON body posted for a document change.
type WebhookEvent struct {
	Event     string `json:"event"`
	Doctype   string `json:"doctype"`
	ID        string `json:"id"`
	Rev       string `json:"rev,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WebhookConfig lists the receivers of change events. When Doctypes is not
// empty only changes of those doctypes are posted.
type WebhookConfig struct {
	URLs     []string
	Doctypes []string
	Timeout  time.Duration
}

// WebhookNotifier posts change events to every configured URL. Delivery is
// best effort: one attempt per URL, failures are logged.
type WebhookNotifier struct {
	urls     []string
	doctypes map[string]bool
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// NewWebhookNotifier returns nil when cfg has no URL. A nil notifier
// ignores every change.
func NewWebhookNotifier(cfg *WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	wn := &WebhookNotifier{
		urls:    cfg.URLs,
		timeout: cfg.Timeout,
		client:  &http.Client{},
		logger:  logger,
	}
	if wn.timeout <= 0 {
		wn.timeout = 10 * time.Second
	}
	if len(cfg.Doctypes) > 0 {
		wn.doctypes = make(map[string]bool, len(cfg.Doctypes))
		for _, doctype := range cfg.Doctypes {
			wn.doctypes[doctype] = true
		}
	}
	return wn
}

func (wn *WebhookNotifier) wants(doctype string) bool {
	return wn.doctypes == nil || wn.doctypes[doctype]
}

// NotifyChange posts event for doc in the background.
func (wn *WebhookNotifier) NotifyChange(event string, doc *models.Document) {
	if wn == nil || doc == nil || !wn.wants(doc.Type) {
		return
	}

	ev := &WebhookEvent{
		Event:     event,
		Doctype:   doc.Type,
		ID:        doc.ID,
		Rev:       doc.Rev,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), wn.timeout)
		defer cancel()
		wn.deliver(ctx, ev)
	}()
}

// deliver posts ev to all URLs concurrently and returns the number of
// failed deliveries.
func (wn *WebhookNotifier) deliver(ctx context.Context, ev *WebhookEvent) int {
	body, err := json.Marshal(ev)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return len(wn.urls)
	}

	failed := make([]bool, len(wn.urls))
	var g errgroup.Group
	for i, url := range wn.urls {
		g.Go(func() error {
			if err := wn.post(ctx, url, ev.Event, body); err != nil {
				failed[i] = true
				wn.logger.Warn("webhook: delivery failed", "url", url, "event", ev.Event, "doctype", ev.Doctype, "error", err)
				return nil
			}
			wn.logger.Debug("webhook: delivered", "url", url, "event", ev.Event, "doctype", ev.Doctype)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

func (wn *WebhookNotifier) post(ctx context.Context, url, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eventHeader, event)

	resp, err := wn.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
