// Package notify dispatches out-of-band order notifications to operators.
// Delivery (email fan-out and the like) belongs to the receiving endpoint;
// this package only attempts the dispatch once and reports the outcome.
package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Dispatcher posts a JSON body {"order_id": "..."} to a webhook URL.
// Responses outside 2xx count as failures. One attempt per order, with a
// bounded timeout; callers must treat failures as non-fatal.
type Dispatcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout bounds each dispatch attempt.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// NewDispatcher creates a Dispatcher for the given webhook URL. An empty URL
// yields a disabled dispatcher whose Notify reports failure, which the
// checkout workflow downgrades to "confirmation pending".
func NewDispatcher(url string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		url:     url,
		client:  http.DefaultClient,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify performs a single dispatch for the given order.
func (d *Dispatcher) Notify(ctx context.Context, orderID string) error {
	if d.url == "" {
		return errors.New("notification webhook is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(orderID) })
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "dispatch")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
