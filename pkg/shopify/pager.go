package shopify

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
)

// Kind names a paginated Admin API collection.
type Kind string

const (
	KindOrders    Kind = "orders"
	KindProducts  Kind = "products"
	KindCustomers Kind = "customers"
)

var validKinds = []Kind{KindOrders, KindProducts, KindCustomers}

// IsValid reports whether the value is a known Kind.
func (k Kind) IsValid() bool {
	for _, candidate := range validKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

const maxPageSize = 250

// Filters narrow a collection fetch. Zero values are omitted from the query.
type Filters struct {
	Status       string
	CreatedAtMin time.Time
	UpdatedAtMin time.Time
	SinceID      string
	Fields       []string
	Limit        int
}

func (f Filters) query(kind Kind) url.Values {
	q := url.Values{}
	limit := f.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	q.Set("limit", strconv.Itoa(limit))
	if kind == KindOrders {
		status := f.Status
		if status == "" {
			status = "any"
		}
		q.Set("status", status)
	}
	if !f.CreatedAtMin.IsZero() {
		q.Set("created_at_min", f.CreatedAtMin.UTC().Format(time.RFC3339))
	}
	if !f.UpdatedAtMin.IsZero() {
		q.Set("updated_at_min", f.UpdatedAtMin.UTC().Format(time.RFC3339))
	}
	if f.SinceID != "" {
		q.Set("since_id", f.SinceID)
	}
	if len(f.Fields) > 0 {
		q.Set("fields", strings.Join(f.Fields, ","))
	}
	return q
}

// Pager lazily walks a collection one page per Next call. Reset restarts it
// from the first page.
type Pager struct {
	client *Client
	kind   Kind
	first  string
	next   string
	done   bool
	pages  int
}

// Pager returns a lazy iterator over kind.
func (c *Client) Pager(kind Kind, filters Filters) (*Pager, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown collection kind "+string(kind))
	}
	first := c.apiBase() + "/" + string(kind) + ".json?" + filters.query(kind).Encode()
	return &Pager{client: c, kind: kind, first: first, next: first}, nil
}

// Done reports whether the last page has been consumed.
func (p *Pager) Done() bool {
	return p.done
}

// Pages returns how many pages have been fetched since the last reset.
func (p *Pager) Pages() int {
	return p.pages
}

// Reset rewinds the pager to the first page.
func (p *Pager) Reset() {
	p.next = p.first
	p.done = false
	p.pages = 0
}

// Next fetches the next page of raw records. On failure the pager stays on
// the same page so a later Next retries it.
func (p *Pager) Next(ctx context.Context) ([]json.RawMessage, error) {
	if p.done {
		return nil, nil
	}
	pg, err := p.client.getPage(ctx, p.kind, p.next)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(pg.body, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, "decode "+string(p.kind)+" page")
	}
	var records []json.RawMessage
	if raw, ok := envelope[string(p.kind)]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, "decode "+string(p.kind)+" records")
		}
	}

	p.pages++
	p.next = pg.next
	if p.next == "" {
		p.done = true
	}
	return records, nil
}

// FetchAll drains every page of kind. When a page fails after retries, the
// records gathered so far are returned together with the error.
func (c *Client) FetchAll(ctx context.Context, kind Kind, filters Filters) ([]json.RawMessage, error) {
	pager, err := c.Pager(kind, filters)
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for !pager.Done() {
		records, err := pager.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// FetchOrders drains the orders collection and decodes each record. Records
// that fail to decode are reported as skipped rather than aborting the fetch.
func (c *Client) FetchOrders(ctx context.Context, filters Filters) (OrderBatch, error) {
	raw, fetchErr := c.FetchAll(ctx, KindOrders, filters)
	batch := OrderBatch{Orders: make([]Order, 0, len(raw))}
	for i, rec := range raw {
		var order Order
		if err := json.Unmarshal(rec, &order); err != nil {
			batch.Undecodable = append(batch.Undecodable, DecodeFailure{Index: i, Err: err})
			continue
		}
		batch.Orders = append(batch.Orders, order)
	}
	return batch, fetchErr
}
