// Package postgrest runs compiled descriptors against a PostgREST server
// through github.com/supabase-community/postgrest-go.
//
// postgrest-go keys filters by column, so a second predicate on the same
// column would replace the first. Handle keeps the first predicate for each
// column as a plain filter and sends the rest through a single and=(...)
// parameter, which PostgREST combines with the plain filters.
package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-dataloader/core/query"
	pgrst "github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

var (
	// ErrNilSource is returned when a Client is created without a source.
	ErrNilSource = errors.New("postgrest source cannot be nil")
	// ErrMultipleRows is reported by MaybeSingle when more than one row matches.
	ErrMultipleRows = query.ErrMultipleRows
)

// query parameters owned by PostgREST itself; filters on columns with these
// names go through the and=(...) parameter.
var reservedParams = map[string]bool{
	"select":      true,
	"order":       true,
	"limit":       true,
	"offset":      true,
	"and":         true,
	"or":          true,
	"on_conflict": true,
	"columns":     true,
}

// Source opens a query builder for a table. Both *postgrest.Client and the
// Supabase client satisfy it.
type Source interface {
	From(table string) *pgrst.QueryBuilder
}

// Client adapts a Source to query.Client.
type Client struct {
	source Source
	logger *zap.Logger
}

var _ query.Client = (*Client)(nil)

// NewClient wraps source. A nil logger falls back to a no-op logger.
func NewClient(source Source, logger *zap.Logger) (*Client, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{source: source, logger: logger}, nil
}

// Dial connects to the PostgREST server at rawURL, authenticating every request
// with apiKey when it is set.
func Dial(rawURL, apiKey, schema string, logger *zap.Logger) (*Client, error) {
	headers := map[string]string{}
	if apiKey != "" {
		headers["apikey"] = apiKey
		headers["Authorization"] = "Bearer " + apiKey
	}
	rest := pgrst.NewClient(rawURL, schema, headers)
	if rest.ClientError != nil {
		return nil, fmt.Errorf("failed to create PostgREST client for %s: %w", rawURL, rest.ClientError)
	}
	return NewClient(rest, logger)
}

// From starts a query on table.
func (c *Client) From(table string) query.TableRef {
	return tableRef{client: c, table: table}
}

type tableRef struct {
	client *Client
	table  string
}

func (t tableRef) Select(columns string, count query.CountType) query.Handle {
	return &Handle{client: t.client, table: t.table, columns: columns, count: count}
}

type order struct {
	column    string
	ascending bool
}

// Handle accumulates builder calls and issues the request on Execute. Every
// method returns a new Handle; the receiver is never modified.
type Handle struct {
	client  *Client
	table   string
	columns string
	count   query.CountType

	filters []filter
	ors     [][]filter
	orders  []order
	offset  *int
	limit   *int
	single  bool
	err     error
}

var _ query.Handle = (*Handle)(nil)

func (h *Handle) clone() *Handle {
	next := *h
	next.filters = append([]filter(nil), h.filters...)
	next.ors = append([][]filter(nil), h.ors...)
	next.orders = append([]order(nil), h.orders...)
	return &next
}

func (h *Handle) fail(err error) query.Handle {
	next := h.clone()
	if next.err == nil {
		next.err = err
	}
	return next
}

func (h *Handle) where(column string, op query.Operator, value any, negated bool) query.Handle {
	f, err := encodeFilter(column, op, value)
	if err != nil {
		return h.fail(err)
	}
	f.negated = negated
	next := h.clone()
	next.filters = append(next.filters, f)
	return next
}

func (h *Handle) Eq(field string, value any) query.Handle {
	return h.where(field, query.OperatorEq, value, false)
}

func (h *Handle) Neq(field string, value any) query.Handle {
	return h.where(field, query.OperatorNeq, value, false)
}

func (h *Handle) Lt(field string, value any) query.Handle {
	return h.where(field, query.OperatorLt, value, false)
}

func (h *Handle) Gt(field string, value any) query.Handle {
	return h.where(field, query.OperatorGt, value, false)
}

func (h *Handle) Lte(field string, value any) query.Handle {
	return h.where(field, query.OperatorLte, value, false)
}

func (h *Handle) Gte(field string, value any) query.Handle {
	return h.where(field, query.OperatorGte, value, false)
}

func (h *Handle) Like(field string, value any) query.Handle {
	return h.where(field, query.OperatorLike, value, false)
}

func (h *Handle) Ilike(field string, value any) query.Handle {
	return h.where(field, query.OperatorIlike, value, false)
}

func (h *Handle) In(field string, values []any) query.Handle {
	return h.where(field, query.OperatorIn, values, false)
}

func (h *Handle) Contains(field string, value any) query.Handle {
	return h.where(field, query.OperatorContains, value, false)
}

func (h *Handle) ContainedBy(field string, values []any) query.Handle {
	return h.where(field, query.OperatorContainedBy, values, false)
}

func (h *Handle) RangeGt(field string, value any) query.Handle {
	return h.where(field, query.OperatorRangeGt, value, false)
}

func (h *Handle) RangeLt(field string, value any) query.Handle {
	return h.where(field, query.OperatorRangeLt, value, false)
}

func (h *Handle) RangeGte(field string, value any) query.Handle {
	return h.where(field, query.OperatorRangeGte, value, false)
}

func (h *Handle) RangeLte(field string, value any) query.Handle {
	return h.where(field, query.OperatorRangeLte, value, false)
}

func (h *Handle) TextSearch(field string, q any) query.Handle {
	return h.where(field, query.OperatorTextSearch, q, false)
}

func (h *Handle) Is(field string, value any) query.Handle {
	return h.where(field, query.OperatorIs, value, false)
}

func (h *Handle) Not(field string, op query.Operator, value any) query.Handle {
	return h.where(field, op, value, true)
}

// Or adds a disjunction of conditions on field.
func (h *Handle) Or(field string, conditions query.Conditions) query.Handle {
	group := make([]filter, 0, len(conditions))
	for _, cond := range conditions {
		f, err := encodeFilter(field, cond.Operator, cond.Value)
		if err != nil {
			return h.fail(err)
		}
		group = append(group, treeLiteral(f))
	}
	if len(group) == 0 {
		return h
	}
	next := h.clone()
	next.ors = append(next.ors, group)
	return next
}

func (h *Handle) Order(field string, ascending bool) query.Handle {
	next := h.clone()
	next.orders = append(next.orders, order{column: field, ascending: ascending})
	return next
}

// Range selects rows from through to, both inclusive.
func (h *Handle) Range(from, to int) query.Handle {
	next := h.clone()
	limit := to - from + 1
	next.offset = &from
	next.limit = &limit
	return next
}

func (h *Handle) Limit(n int) query.Handle {
	next := h.clone()
	next.limit = &n
	return next
}

func (h *Handle) MaybeSingle() query.Handle {
	next := h.clone()
	next.single = true
	return next
}

// build applies the accumulated calls to a fresh postgrest-go builder.
func (h *Handle) build() *pgrst.FilterBuilder {
	fb := h.client.source.From(h.table).Select(h.columns, string(h.count), false)

	var and []string
	seen := make(map[string]bool)
	for _, f := range h.filters {
		if seen[f.column] || reservedParams[f.column] {
			and = append(and, treeLiteral(f).expr())
			continue
		}
		seen[f.column] = true
		if f.negated {
			fb = fb.Not(f.column, f.code, f.literal)
		} else {
			fb = fb.Filter(f.column, f.code, f.literal)
		}
	}

	for i, group := range h.ors {
		exprs := make([]string, len(group))
		for j, f := range group {
			exprs[j] = f.expr()
		}
		if i == 0 {
			fb = fb.Or(strings.Join(exprs, ","), "")
			continue
		}
		and = append(and, "or("+strings.Join(exprs, ",")+")")
	}

	if len(and) > 0 {
		fb = fb.And(strings.Join(and, ","), "")
	}

	for _, o := range h.orders {
		fb = fb.Order(o.column, &pgrst.OrderOpts{Ascending: o.ascending})
	}

	// Range always sets both, so an offset never appears without a limit.
	if h.offset != nil {
		fb = fb.Range(*h.offset, *h.offset+*h.limit-1, "")
	} else if h.limit != nil {
		fb = fb.Limit(*h.limit, "")
	}
	return fb
}

// Execute sends the request. postgrest-go does not accept a context, so ctx
// is only checked before the request is sent.
func (h *Handle) Execute(ctx context.Context) query.Response {
	if h.err != nil {
		return query.Response{Error: h.err}
	}
	if err := ctx.Err(); err != nil {
		return query.Response{Error: err}
	}

	h.client.logger.Debug("Executing PostgREST query",
		zap.String("table", h.table),
		zap.String("select", h.columns),
		zap.Int("filters", len(h.filters)+len(h.ors)),
		zap.Bool("maybeSingle", h.single),
	)

	body, total, err := h.build().Execute()
	if err != nil {
		return query.Response{Error: fmt.Errorf("query on %s failed: %w", h.table, err)}
	}

	var count *int64
	if h.count != "" {
		count = &total
	}

	var rows []map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			return query.Response{Count: count, Error: fmt.Errorf("failed to decode %s rows: %w", h.table, err)}
		}
	}

	if !h.single {
		return query.Response{Data: rows, Count: count}
	}

	switch len(rows) {
	case 0:
		return query.Response{Count: count}
	case 1:
		return query.Response{Data: rows[0], Count: count}
	default:
		return query.Response{Count: count, Error: fmt.Errorf("%s returned %d rows: %w", h.table, len(rows), ErrMultipleRows)}
	}
}
