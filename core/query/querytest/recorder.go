// Package querytest provides a recording query engine for tests. Every handle
// call is recorded; Execute stores the chain on the client and returns a
// canned response.
package querytest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/asaidimu/go-dataloader/core/query"
)

// Call is one recorded builder call.
type Call struct {
	Method string
	Args   []any
}

// String renders the call as method(arg, ...).
func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		if a == nil {
			args[i] = "null"
			continue
		}
		args[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s(%s)", c.Method, strings.Join(args, ", "))
}

// Client records executed chains.
type Client struct {
	// Response is returned from every Execute.
	Response query.Response

	mu         sync.Mutex
	table      string
	selection  string
	count      query.CountType
	calls      []Call
	executions int
}

var _ query.Client = (*Client)(nil)

// NewClient returns a client answering every query with resp.
func NewClient(resp query.Response) *Client {
	return &Client{Response: resp}
}

// From starts a recorded chain.
func (c *Client) From(table string) query.TableRef {
	return tableRef{client: c, table: table}
}

// Table returns the table of the last executed chain.
func (c *Client) Table() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}

// Select returns the select string of the last executed chain.
func (c *Client) Select() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Count returns the count mode of the last executed chain.
func (c *Client) Count() query.CountType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Calls returns the calls of the last executed chain.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Methods returns the rendered calls of the last executed chain.
func (c *Client) Methods() []string {
	calls := c.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.String()
	}
	return out
}

// Executions returns how many chains were executed.
func (c *Client) Executions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executions
}

type tableRef struct {
	client *Client
	table  string
}

func (t tableRef) Select(columns string, count query.CountType) query.Handle {
	return &Handle{client: t.client, table: t.table, selection: columns, count: count}
}

// Handle is an immutable recording handle.
type Handle struct {
	client    *Client
	table     string
	selection string
	count     query.CountType
	calls     []Call
}

var _ query.Handle = (*Handle)(nil)

// Recorded returns the calls made on this handle so far.
func (h *Handle) Recorded() []Call {
	return append([]Call(nil), h.calls...)
}

func (h *Handle) with(method string, args ...any) query.Handle {
	next := *h
	next.calls = append(append(make([]Call, 0, len(h.calls)+1), h.calls...), Call{Method: method, Args: args})
	return &next
}

func (h *Handle) Eq(field string, value any) query.Handle    { return h.with("eq", field, value) }
func (h *Handle) Neq(field string, value any) query.Handle   { return h.with("neq", field, value) }
func (h *Handle) Lt(field string, value any) query.Handle    { return h.with("lt", field, value) }
func (h *Handle) Gt(field string, value any) query.Handle    { return h.with("gt", field, value) }
func (h *Handle) Lte(field string, value any) query.Handle   { return h.with("lte", field, value) }
func (h *Handle) Gte(field string, value any) query.Handle   { return h.with("gte", field, value) }
func (h *Handle) Like(field string, value any) query.Handle  { return h.with("like", field, value) }
func (h *Handle) Ilike(field string, value any) query.Handle { return h.with("ilike", field, value) }
func (h *Handle) In(field string, values []any) query.Handle {
	return h.with("in", field, values)
}
func (h *Handle) Contains(field string, value any) query.Handle {
	return h.with("contains", field, value)
}
func (h *Handle) ContainedBy(field string, values []any) query.Handle {
	return h.with("containedBy", field, values)
}
func (h *Handle) RangeGt(field string, value any) query.Handle {
	return h.with("rangeGt", field, value)
}
func (h *Handle) RangeLt(field string, value any) query.Handle {
	return h.with("rangeLt", field, value)
}
func (h *Handle) RangeGte(field string, value any) query.Handle {
	return h.with("rangeGte", field, value)
}
func (h *Handle) RangeLte(field string, value any) query.Handle {
	return h.with("rangeLte", field, value)
}
func (h *Handle) TextSearch(field string, q any) query.Handle {
	return h.with("textSearch", field, q)
}
func (h *Handle) Not(field string, op query.Operator, value any) query.Handle {
	return h.with("not", field, string(op), value)
}
func (h *Handle) Is(field string, value any) query.Handle { return h.with("is", field, value) }
func (h *Handle) Or(field string, conditions query.Conditions) query.Handle {
	return h.with("or", field, conditions)
}
func (h *Handle) Order(field string, ascending bool) query.Handle {
	return h.with("order", field, ascending)
}
func (h *Handle) Range(from, to int) query.Handle { return h.with("range", from, to) }
func (h *Handle) Limit(n int) query.Handle        { return h.with("limit", n) }
func (h *Handle) MaybeSingle() query.Handle       { return h.with("maybeSingle") }

// Execute records the chain on the client and returns its canned response.
func (h *Handle) Execute(ctx context.Context) query.Response {
	c := h.client
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = h.table
	c.selection = h.selection
	c.count = h.count
	c.calls = append([]Call(nil), h.calls...)
	c.executions++
	if err := ctx.Err(); err != nil {
		return query.Response{Error: err}
	}
	return c.Response
}
