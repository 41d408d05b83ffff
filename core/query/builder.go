package query

import (
	"fmt"
	"strings"
)

// QueryBuilder provides a fluent API for building Props.
type QueryBuilder struct {
	props Props
}

// NewQueryBuilder creates a builder for a query against table.
func NewQueryBuilder(table string) *QueryBuilder {
	return &QueryBuilder{props: Props{Table: table}}
}

// Build returns a copy of the constructed descriptor.
func (qb *QueryBuilder) Build() Props {
	return qb.Clone().props
}

// Clone creates a copy of the builder. Filters, sort entries and pagination
// values are copied so that changes to the clone never reach the original.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	p := qb.props
	if p.Where != nil {
		where := make(Filter, len(p.Where))
		for i, ff := range p.Where {
			where[i] = FieldFilter{Field: ff.Field, Predicates: append([]Predicate(nil), ff.Predicates...)}
		}
		p.Where = where
	}
	p.Sort = append([]SortConfiguration(nil), p.Sort...)
	if p.Page != nil {
		p.Page = IntPtr(*p.Page)
	}
	if p.Limit != nil {
		p.Limit = IntPtr(*p.Limit)
	}
	p.Select = Selection{raw: p.Select.raw, columns: p.Select.Fields()}
	return &QueryBuilder{props: p}
}

// Reset clears everything except the table name.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.props = Props{Table: qb.props.Table}
	return qb
}

// Select sets the columns to return. Use "table.column" for related tables.
func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	qb.props.Select = Columns(columns...)
	return qb
}

// SelectRaw passes a select string through unchanged.
func (qb *QueryBuilder) SelectRaw(s string) *QueryBuilder {
	qb.props.Select = Raw(s)
	return qb
}

// SelectAll selects every column.
func (qb *QueryBuilder) SelectAll() *QueryBuilder {
	qb.props.Select = All()
	return qb
}

// Where begins a predicate on field.
func (qb *QueryBuilder) Where(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{parent: qb, field: field}
}

// FilterConditionBuilder adds a single predicate to a field.
type FilterConditionBuilder struct {
	parent *QueryBuilder
	field  string
}

func (fcb *FilterConditionBuilder) Eq(value any) *QueryBuilder  { return fcb.add(Eq(value)) }
func (fcb *FilterConditionBuilder) Neq(value any) *QueryBuilder { return fcb.add(Neq(value)) }
func (fcb *FilterConditionBuilder) Lt(value any) *QueryBuilder  { return fcb.add(Lt(value)) }
func (fcb *FilterConditionBuilder) Gt(value any) *QueryBuilder  { return fcb.add(Gt(value)) }
func (fcb *FilterConditionBuilder) Lte(value any) *QueryBuilder { return fcb.add(Lte(value)) }
func (fcb *FilterConditionBuilder) Gte(value any) *QueryBuilder { return fcb.add(Gte(value)) }

// Like adds a case-sensitive pattern match.
func (fcb *FilterConditionBuilder) Like(pattern string) *QueryBuilder {
	return fcb.add(Like(pattern))
}

// Ilike adds a case-insensitive pattern match.
func (fcb *FilterConditionBuilder) Ilike(pattern string) *QueryBuilder {
	return fcb.add(Ilike(pattern))
}

// In checks that the field's value is one of values.
func (fcb *FilterConditionBuilder) In(values ...any) *QueryBuilder {
	return fcb.add(In(values...))
}

// Contains checks that the field contains value (array, object or range).
func (fcb *FilterConditionBuilder) Contains(value any) *QueryBuilder {
	return fcb.add(Contains(value))
}

// ContainedBy checks that every element of the field is one of values.
func (fcb *FilterConditionBuilder) ContainedBy(values ...any) *QueryBuilder {
	return fcb.add(ContainedBy(values...))
}

func (fcb *FilterConditionBuilder) RangeGt(value any) *QueryBuilder  { return fcb.add(RangeGt(value)) }
func (fcb *FilterConditionBuilder) RangeLt(value any) *QueryBuilder  { return fcb.add(RangeLt(value)) }
func (fcb *FilterConditionBuilder) RangeGte(value any) *QueryBuilder { return fcb.add(RangeGte(value)) }
func (fcb *FilterConditionBuilder) RangeLte(value any) *QueryBuilder { return fcb.add(RangeLte(value)) }

// TextSearch adds a full-text search on the field.
func (fcb *FilterConditionBuilder) TextSearch(query string) *QueryBuilder {
	return fcb.add(TextSearch(query))
}

// Is compares the field against true, false or null (nil).
func (fcb *FilterConditionBuilder) Is(value any) *QueryBuilder {
	return fcb.add(Is(value))
}

// Not negates each of the given predicates.
func (fcb *FilterConditionBuilder) Not(predicates ...Predicate) *QueryBuilder {
	return fcb.add(Not(predicates...))
}

// Or matches rows satisfying any of the given predicates.
func (fcb *FilterConditionBuilder) Or(predicates ...Predicate) *QueryBuilder {
	return fcb.add(Or(predicates...))
}

// add appends the predicate to the field's existing filter, or starts one.
func (fcb *FilterConditionBuilder) add(p Predicate) *QueryBuilder {
	qb := fcb.parent
	for i := range qb.props.Where {
		if qb.props.Where[i].Field == fcb.field {
			qb.props.Where[i].Predicates = append(qb.props.Where[i].Predicates, p)
			return qb
		}
	}
	qb.props.Where = append(qb.props.Where, FieldFilter{Field: fcb.field, Predicates: []Predicate{p}})
	return qb
}

// OrderBy adds a sorting configuration to the query.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	qb.props.Sort = append(qb.props.Sort, SortConfiguration{Field: field, Direction: direction})
	return qb
}

// OrderByAsc adds an ascending sort order for a specific field.
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionAsc)
}

// OrderByDesc adds a descending sort order for a specific field.
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionDesc)
}

// Page sets the 1-based page number.
func (qb *QueryBuilder) Page(page int) *QueryBuilder {
	qb.props.Page = IntPtr(page)
	return qb
}

// Limit sets the page size.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	qb.props.Limit = IntPtr(limit)
	return qb
}

// Count sets the count mode.
func (qb *QueryBuilder) Count(count CountType) *QueryBuilder {
	qb.props.Count = count
	return qb
}

// Single asks for at most one row.
func (qb *QueryBuilder) Single() *QueryBuilder {
	qb.props.Single = true
	return qb
}

// CamelCase converts result keys to lowerCamelCase.
func (qb *QueryBuilder) CamelCase() *QueryBuilder {
	qb.props.CamelCase = true
	return qb
}

// Join sets the embedding variant for related-table columns.
func (qb *QueryBuilder) Join(join JoinType) *QueryBuilder {
	qb.props.Join = join
	return qb
}

// Validate checks the descriptor built so far.
func (qb *QueryBuilder) Validate() QueryValidationResult {
	return qb.props.Validate()
}

// String returns a human-readable summary of the built query.
func (qb *QueryBuilder) String() string {
	parts := []string{"TABLE: " + qb.props.Table}

	sel, err := BuildSelect(qb.props.Select, qb.props.Join)
	if err != nil {
		sel = "invalid (" + err.Error() + ")"
	}
	parts = append(parts, "SELECT: "+sel)

	if len(qb.props.Where) > 0 {
		fields := make([]string, len(qb.props.Where))
		for i, ff := range qb.props.Where {
			fields[i] = fmt.Sprintf("%s(%d)", ff.Field, len(ff.Predicates))
		}
		parts = append(parts, "WHERE: "+strings.Join(fields, ", "))
	}
	if len(qb.props.Sort) > 0 {
		sorts := make([]string, len(qb.props.Sort))
		for i, s := range qb.props.Sort {
			sorts[i] = s.Field + " " + strings.ToUpper(string(s.Direction))
		}
		parts = append(parts, "SORT: "+strings.Join(sorts, ", "))
	}
	if qb.props.Page != nil {
		parts = append(parts, fmt.Sprintf("PAGE: %d", *qb.props.Page))
	}
	if qb.props.Limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT: %d", *qb.props.Limit))
	}
	if qb.props.Single {
		parts = append(parts, "SINGLE")
	}
	return strings.Join(parts, " | ")
}

// Predicate constructors.

func Eq(value any) Predicate  { return Predicate{Operator: OperatorEq, Value: value} }
func Neq(value any) Predicate { return Predicate{Operator: OperatorNeq, Value: value} }
func Lt(value any) Predicate  { return Predicate{Operator: OperatorLt, Value: value} }
func Gt(value any) Predicate  { return Predicate{Operator: OperatorGt, Value: value} }
func Lte(value any) Predicate { return Predicate{Operator: OperatorLte, Value: value} }
func Gte(value any) Predicate { return Predicate{Operator: OperatorGte, Value: value} }

func Like(pattern any) Predicate  { return Predicate{Operator: OperatorLike, Value: pattern} }
func Ilike(pattern any) Predicate { return Predicate{Operator: OperatorIlike, Value: pattern} }

func In(values ...any) Predicate {
	return Predicate{Operator: OperatorIn, Value: append([]any{}, values...)}
}

func Contains(value any) Predicate { return Predicate{Operator: OperatorContains, Value: value} }

func ContainedBy(values ...any) Predicate {
	return Predicate{Operator: OperatorContainedBy, Value: append([]any{}, values...)}
}

func RangeGt(value any) Predicate  { return Predicate{Operator: OperatorRangeGt, Value: value} }
func RangeLt(value any) Predicate  { return Predicate{Operator: OperatorRangeLt, Value: value} }
func RangeGte(value any) Predicate { return Predicate{Operator: OperatorRangeGte, Value: value} }
func RangeLte(value any) Predicate { return Predicate{Operator: OperatorRangeLte, Value: value} }

func TextSearch(query any) Predicate { return Predicate{Operator: OperatorTextSearch, Value: query} }
func Is(value any) Predicate         { return Predicate{Operator: OperatorIs, Value: value} }

func Not(predicates ...Predicate) Predicate {
	return Predicate{Operator: OperatorNot, Value: Conditions(predicates)}
}

func Or(predicates ...Predicate) Predicate {
	return Predicate{Operator: OperatorOr, Value: Conditions(predicates)}
}
