package query

import (
	"context"
	"errors"
)

// ErrMultipleRows is reported by engines when a MaybeSingle query matches
// more than one row.
var ErrMultipleRows = errors.New("more than one row returned for a single-row query")

// Client is the entry point of a query engine.
type Client interface {
	// From starts a query against a table.
	From(table string) TableRef
}

// TableRef is a table reference awaiting its projection.
type TableRef interface {
	// Select sets the select string and the count mode, returning the first
	// builder handle of the chain.
	Select(columns string, count CountType) Handle
}

// Handle is an immutable query-builder handle. Every call returns a new
// handle; the receiver is left untouched. Implementations translate the calls
// into their own query language.
type Handle interface {
	Eq(field string, value any) Handle
	Neq(field string, value any) Handle
	Lt(field string, value any) Handle
	Gt(field string, value any) Handle
	Lte(field string, value any) Handle
	Gte(field string, value any) Handle
	Like(field string, pattern any) Handle
	Ilike(field string, pattern any) Handle
	In(field string, values []any) Handle

	// Contains takes any composite operand: a list, an object, or a range
	// literal.
	Contains(field string, value any) Handle
	ContainedBy(field string, values []any) Handle
	RangeGt(field string, value any) Handle
	RangeLt(field string, value any) Handle
	RangeGte(field string, value any) Handle
	RangeLte(field string, value any) Handle
	TextSearch(field string, query any) Handle

	// Not negates a single operator. The value has already been normalized
	// the same way the positive operator would receive it.
	Not(field string, op Operator, value any) Handle

	// Is compares against a bool or, when value is nil, against null.
	Is(field string, value any) Handle

	// Or combines the conditions on field with OR.
	Or(field string, conditions Conditions) Handle

	Order(field string, ascending bool) Handle

	// Range restricts the result to rows from..to.
	Range(from, to int) Handle
	Limit(n int) Handle

	// MaybeSingle asks for at most one row, returned as an object.
	MaybeSingle() Handle

	Execute(ctx context.Context) Response
}

// Response is what an engine returns for an executed handle.
type Response struct {
	Data  any
	Count *int64
	Error error
}
