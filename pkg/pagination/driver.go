// Package pagination drives continuation-cursor queries to completion: it
// repeatedly executes a request template, merges the cursor from each page
// into the next request, and stops when the cursor is absent or a result
// quota is reached.
package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nachtfalke/wiki-action-client/pkg/client"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_pages_fetched_total",
		Help: "Total pagination pages fetched by action",
	}, []string{"action"})

	itemsDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_pagination_items_total",
		Help: "Total pagination items decoded by action",
	}, []string{"action"})
)

// ErrDone signals that a driver has delivered every page.
var ErrDone = errors.New("pagination: iteration complete")

// Executor issues one logical request. *client.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *client.Request) (*client.RawResponse, error)
}

// PageDecoder decodes one page body into result items.
type PageDecoder[T any] func(body []byte) ([]T, error)

// Options bound one paginated run.
type Options struct {
	// PerPage is the per-page limit requested from the server. Zero asks
	// for the server default.
	PerPage int

	// Total caps the items delivered across all pages. Zero means
	// unlimited. The driver stops issuing requests once the quota is met,
	// discarding any dangling cursor.
	Total int

	// LimitParam names the per-page limit parameter (e.g. "aplimit").
	// Empty omits the parameter.
	LimitParam string
}

// Driver is a lazy, finite, non-restartable page sequence. Page requests are
// inherently sequential: each depends on the previous page's cursor. A
// driver must not be shared across goroutines.
type Driver[T any] struct {
	exec     Executor
	decoder  client.ResponseDecoder
	template func() (*client.Request, error)
	decode   PageDecoder[T]
	opts     Options
	logger   zerolog.Logger

	cursor client.Cursor
	count  int
	pages  int
	done   bool
}

// New creates a driver. The template builds a fresh request per page
// (requests are consumed once); decode extracts this page's items.
func New[T any](exec Executor, decoder client.ResponseDecoder, template func() (*client.Request, error), decode PageDecoder[T], opts Options, logger zerolog.Logger) *Driver[T] {
	return &Driver[T]{
		exec:     exec,
		decoder:  decoder,
		template: template,
		decode:   decode,
		opts:     opts,
		logger:   logger,
	}
}

// Next fetches and decodes the next page. It returns ErrDone once the
// listing is exhausted or the quota is met. A page may legitimately carry
// zero items while the cursor continues; callers loop until ErrDone. Any
// executor error aborts the sequence; items from earlier pages stay valid at
// the caller's discretion.
func (d *Driver[T]) Next(ctx context.Context) ([]T, error) {
	if d.done {
		return nil, ErrDone
	}

	limit := d.opts.PerPage
	if d.opts.Total > 0 {
		remaining := d.opts.Total - d.count
		if remaining <= 0 {
			d.done = true
			return nil, ErrDone
		}
		if limit <= 0 || remaining < limit {
			limit = remaining
		}
	}

	req, err := d.template()
	if err != nil {
		d.done = true
		return nil, fmt.Errorf("build page request: %w", err)
	}
	if limit > 0 && d.opts.LimitParam != "" {
		if err := req.Set(d.opts.LimitParam, limit); err != nil {
			d.done = true
			return nil, err
		}
	}
	// Cursor parameters merge verbatim into this page's request. The cursor
	// is replaced wholesale each iteration, never accumulated.
	for _, p := range d.cursor {
		if err := req.SetQuery(p.Key, p.Value); err != nil {
			d.done = true
			return nil, err
		}
	}

	resp, err := d.exec.Execute(ctx, req)
	if err != nil {
		d.done = true
		return nil, err
	}

	items, err := d.decode(resp.Body)
	if err != nil {
		d.done = true
		return nil, fmt.Errorf("decode page %d: %w", d.pages+1, err)
	}
	next := d.decoder.DecodeContinuation(resp.Body)

	if d.opts.Total > 0 && d.count+len(items) > d.opts.Total {
		items = items[:d.opts.Total-d.count]
		next = nil // quota met mid-page, dangling cursor discarded
	}

	d.count += len(items)
	d.pages++
	pagesFetchedTotal.WithLabelValues(req.Action()).Inc()
	itemsDecodedTotal.WithLabelValues(req.Action()).Add(float64(len(items)))

	d.logger.Debug().
		Str("action", req.Action()).
		Int("pages", d.pages).
		Int("items", d.count).
		Bool("has_cursor", next != nil).
		Msg("Page fetched")

	if next == nil {
		d.done = true
	} else {
		d.cursor = next
	}
	return items, nil
}

// All drains the sequence into one slice. Items decoded before a failure are
// returned alongside the error.
func (d *Driver[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for {
		items, err := d.Next(ctx)
		if errors.Is(err, ErrDone) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, items...)
	}
}

// Count returns the items delivered so far.
func (d *Driver[T]) Count() int { return d.count }

// Pages returns the pages fetched so far.
func (d *Driver[T]) Pages() int { return d.pages }
