package notify

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/httputil"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

const queueSize = 256

// Poster is the outbound transport (httputil.Client)
type Poster interface {
	PostJSON(ctx context.Context, url string, data interface{}) (*http.Response, error)
}

// Webhook POSTs committed events to external URLs in the background.
// Delivery is best-effort: a full queue drops the event.
// ⭐ SSOT: 외부 이벤트 통지는 여기서만
type Webhook struct {
	client Poster
	urls   []string
	events []string
	logger *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan contracts.Event
	wg     sync.WaitGroup
}

// NewWebhook creates a notifier. An empty events list forwards every event type.
func NewWebhook(client Poster, urls, events []string, log *logger.Logger) *Webhook {
	return &Webhook{
		client: client,
		urls:   urls,
		events: events,
		logger: log,
		queue:  make(chan contracts.Event, queueSize),
	}
}

var (
	_ contracts.EventSink = (*Webhook)(nil)
	_ Poster              = (*httputil.Client)(nil)
)

// Start runs the delivery loop until Close
func (w *Webhook) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for ev := range w.queue {
			w.deliver(ctx, ev)
		}
	}()
}

// Close stops accepting events and waits for queued deliveries
func (w *Webhook) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Publish implements contracts.EventSink
func (w *Webhook) Publish(_ context.Context, ev contracts.Event) {
	if len(w.urls) == 0 || (len(w.events) > 0 && !slices.Contains(w.events, ev.Type)) {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.queue <- ev:
	default:
		w.logger.WithField("event", ev.Type).Warn("Webhook queue full, event dropped")
	}
}

func (w *Webhook) deliver(ctx context.Context, ev contracts.Event) {
	for _, url := range w.urls {
		resp, err := w.client.PostJSON(ctx, url, ev)
		if err != nil {
			w.logger.WithError(err).WithField("url", url).Warn("Webhook delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			w.logger.WithFields(map[string]interface{}{
				"url":    url,
				"status": resp.StatusCode,
				"event":  ev.Type,
			}).Warn("Webhook rejected event")
		}
	}
}
