// Package query defines the declarative data-loading descriptor and compiles it
// into a PostgREST select string plus an ordered list of builder calls. The
// compiled form is applied to an engine handle (see Handle) and the engine's
// response is shaped into a QueryResult.
package query

// Operator names a filter operator understood by the compiler.
type Operator string

// Supported filter operators.
const (
	OperatorEq          Operator = "eq"
	OperatorNeq         Operator = "neq"
	OperatorLt          Operator = "lt"
	OperatorGt          Operator = "gt"
	OperatorLte         Operator = "lte"
	OperatorGte         Operator = "gte"
	OperatorLike        Operator = "like"
	OperatorIlike       Operator = "ilike"
	OperatorIn          Operator = "in"
	OperatorContains    Operator = "contains"
	OperatorContainedBy Operator = "containedBy"
	OperatorRangeGt     Operator = "rangeGt"
	OperatorRangeLt     Operator = "rangeLt"
	OperatorRangeGte    Operator = "rangeGte"
	OperatorRangeLte    Operator = "rangeLte"
	OperatorTextSearch  Operator = "textSearch"
	OperatorNot         Operator = "not"
	OperatorOr          Operator = "or"
	OperatorIs          Operator = "is"
)

var operators = []Operator{
	OperatorEq,
	OperatorNeq,
	OperatorLt,
	OperatorGt,
	OperatorLte,
	OperatorGte,
	OperatorLike,
	OperatorIlike,
	OperatorIn,
	OperatorContains,
	OperatorContainedBy,
	OperatorRangeGt,
	OperatorRangeLt,
	OperatorRangeGte,
	OperatorRangeLte,
	OperatorTextSearch,
	OperatorNot,
	OperatorOr,
	OperatorIs,
}

// Operators returns every supported operator in dispatch order.
func Operators() []Operator {
	return append([]Operator(nil), operators...)
}

// IsValid reports whether the operator is one the compiler knows how to dispatch.
func (o Operator) IsValid() bool {
	for _, op := range operators {
		if op == o {
			return true
		}
	}
	return false
}

// isLogical reports whether the operator takes a list of inner predicates.
func (o Operator) isLogical() bool {
	return o == OperatorNot || o == OperatorOr
}

// CountType selects how the engine computes the total row count.
type CountType string

// Count modes passed through to the engine verbatim.
const (
	CountExact     CountType = "exact"
	CountPlanned   CountType = "planned"
	CountEstimated CountType = "estimated"
)

// IsValid reports whether c is a count mode the engine accepts. The empty
// value is valid and means "use the loader default".
func (c CountType) IsValid() bool {
	switch c {
	case "", CountExact, CountPlanned, CountEstimated:
		return true
	}
	return false
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// JoinType selects the embedding variant used for related-table columns.
type JoinType string

// Supported join types.
const (
	JoinTypeInner JoinType = "inner"
	JoinTypeLeft  JoinType = "left"
)

type undefined struct{}

// Undefined marks an operand as absent. It differs from nil, which is an
// explicit null: eq(nil) is skipped, but lt(nil) is sent to the engine.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Predicate is a single operator applied to a field.
type Predicate struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Conditions is the operand of the logical operators not and or: an ordered
// list of predicates on the same field.
type Conditions []Predicate

// FieldFilter holds the predicates for one field. Several predicates on the
// same field are combined with AND.
type FieldFilter struct {
	Field      string      `json:"field"`
	Predicates []Predicate `json:"predicates"`
}

// Filter is an ordered list of field filters, all combined with AND.
type Filter []FieldFilter

// Selection describes the columns to return. The zero value selects every
// column.
type Selection struct {
	raw     *string
	columns []string
}

// All selects every column.
func All() Selection {
	return Selection{}
}

// Raw passes a select string to the engine unchanged.
func Raw(s string) Selection {
	return Selection{raw: &s}
}

// Columns selects an ordered list of columns. A column of the form
// "table.column" projects a column from a related table.
func Columns(cols ...string) Selection {
	return Selection{columns: append([]string(nil), cols...)}
}

// IsWildcard reports whether the selection returns every column.
func (s Selection) IsWildcard() bool {
	return s.raw == nil && len(s.columns) == 0
}

// RawString returns the raw select string, if the selection is one.
func (s Selection) RawString() (string, bool) {
	if s.raw == nil {
		return "", false
	}
	return *s.raw, true
}

// Fields returns a copy of the column list.
func (s Selection) Fields() []string {
	return append([]string(nil), s.columns...)
}

// Props is the data-loading descriptor. It is built per call and consumed once.
type Props struct {
	Table     string              `json:"table"`
	Select    Selection           `json:"-"`
	Where     Filter              `json:"where,omitempty"`
	Sort      []SortConfiguration `json:"sort,omitempty"`
	Page      *int                `json:"page,omitempty"`
	Limit     *int                `json:"limit,omitempty"`
	Count     CountType           `json:"count,omitempty"`
	Single    bool                `json:"single,omitempty"`
	CamelCase bool                `json:"camelCase,omitempty"`
	Join      JoinType            `json:"join,omitempty"`
}

// QueryResult is the shaped outcome of a load. Data is a map (or nil) when
// the descriptor asked for a single row and a []map[string]any otherwise.
// Error carries the engine's error; it is never raised.
type QueryResult struct {
	Data       any               `json:"data"`
	Count      int64             `json:"count"`
	Error      error             `json:"-"`
	Pagination *PaginationResult `json:"pagination,omitempty"`
}

// PaginationResult describes the page a list result belongs to.
type PaginationResult struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int   `json:"pageCount"`
	Total     int64 `json:"total"`
}
