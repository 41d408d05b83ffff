package sqlengine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
	"go.uber.org/zap"
)

var comparisonOperators = map[query.Operator]string{
	query.OperatorEq:  "=",
	query.OperatorNeq: "<>",
	query.OperatorLt:  "<",
	query.OperatorGt:  ">",
	query.OperatorLte: "<=",
	query.OperatorGte: ">=",
}

// condition is one filter call recorded on a handle.
type condition struct {
	column  string
	op      query.Operator
	value   any
	negated bool
	// conditions is the operand of an or-group.
	conditions query.Conditions
}

type order struct {
	column    string
	ascending bool
}

// Handle accumulates builder calls and runs the query on Execute. Every
// method returns a new Handle; the receiver is never modified.
type Handle struct {
	engine  *Engine
	table   string
	columns string
	count   query.CountType

	where  []condition
	orders []order
	offset int
	limit  *int
	single bool
}

var _ query.Handle = (*Handle)(nil)

func (h *Handle) clone() *Handle {
	next := *h
	next.where = append([]condition(nil), h.where...)
	next.orders = append([]order(nil), h.orders...)
	return &next
}

func (h *Handle) filter(c condition) query.Handle {
	next := h.clone()
	next.where = append(next.where, c)
	return next
}

func (h *Handle) Eq(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorEq, value: value})
}

func (h *Handle) Neq(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorNeq, value: value})
}

func (h *Handle) Lt(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorLt, value: value})
}

func (h *Handle) Gt(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorGt, value: value})
}

func (h *Handle) Lte(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorLte, value: value})
}

func (h *Handle) Gte(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorGte, value: value})
}

func (h *Handle) Like(field string, pattern any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorLike, value: pattern})
}

func (h *Handle) Ilike(field string, pattern any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorIlike, value: pattern})
}

func (h *Handle) In(field string, values []any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorIn, value: values})
}

func (h *Handle) Contains(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorContains, value: value})
}

func (h *Handle) ContainedBy(field string, values []any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorContainedBy, value: values})
}

func (h *Handle) RangeGt(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorRangeGt, value: value})
}

func (h *Handle) RangeLt(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorRangeLt, value: value})
}

func (h *Handle) RangeGte(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorRangeGte, value: value})
}

func (h *Handle) RangeLte(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorRangeLte, value: value})
}

func (h *Handle) TextSearch(field string, q any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorTextSearch, value: q})
}

func (h *Handle) Not(field string, op query.Operator, value any) query.Handle {
	return h.filter(condition{column: field, op: op, value: value, negated: true})
}

func (h *Handle) Is(field string, value any) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorIs, value: value})
}

func (h *Handle) Or(field string, conditions query.Conditions) query.Handle {
	return h.filter(condition{column: field, op: query.OperatorOr, conditions: append(query.Conditions(nil), conditions...)})
}

func (h *Handle) Order(field string, ascending bool) query.Handle {
	next := h.clone()
	next.orders = append(next.orders, order{column: field, ascending: ascending})
	return next
}

// Range restricts the result to rows from through to, both inclusive. A
// limit already set is kept when it is smaller.
func (h *Handle) Range(from, to int) query.Handle {
	next := h.clone()
	next.offset = from
	next.limit = minLimit(h.limit, to-from+1)
	return next
}

// Limit caps the number of rows; it never raises a cap set by Range.
func (h *Handle) Limit(n int) query.Handle {
	next := h.clone()
	next.limit = minLimit(h.limit, n)
	return next
}

func (h *Handle) MaybeSingle() query.Handle {
	next := h.clone()
	next.single = true
	return next
}

func minLimit(current *int, n int) *int {
	if n < 0 {
		n = 0
	}
	if current != nil && *current < n {
		n = *current
	}
	return &n
}

// Execute runs the count query when a count mode is set, then the select.
// Every count mode is computed exactly.
func (h *Handle) Execute(ctx context.Context) query.Response {
	if err := ctx.Err(); err != nil {
		return query.Response{Error: err}
	}

	p, err := h.engine.project(h.table, h.columns)
	if err != nil {
		return query.Response{Error: err}
	}

	var count *int64
	if h.count != "" {
		n, err := h.countRows(ctx, p)
		if err != nil {
			return query.Response{Error: err}
		}
		count = &n
	}

	st := newStatement(h.engine.dialect)
	sqlText, err := h.selectSQL(st, p)
	if err != nil {
		return query.Response{Count: count, Error: err}
	}

	h.engine.logger.Debug("Executing SQL SELECT",
		zap.String("sql", sqlText),
		zap.Any("params", st.args),
		zap.Bool("maybeSingle", h.single),
	)

	rows, err := h.engine.runner().QueryContext(ctx, sqlText, st.args...)
	if err != nil {
		h.engine.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlText))
		return query.Response{Count: count, Error: fmt.Errorf("query on %s failed: %w", h.table, err)}
	}
	defer rows.Close()

	found, err := readRows(h.engine.dialect, p, rows)
	if err != nil {
		return query.Response{Count: count, Error: err}
	}

	if !h.single {
		return query.Response{Data: found, Count: count}
	}
	switch len(found) {
	case 0:
		return query.Response{Count: count}
	case 1:
		return query.Response{Data: found[0], Count: count}
	default:
		return query.Response{Count: count, Error: fmt.Errorf("%s returned more than one row: %w", h.table, query.ErrMultipleRows)}
	}
}

func (h *Handle) countRows(ctx context.Context, p *projection) (int64, error) {
	st := newStatement(h.engine.dialect)
	from, err := h.fromWhere(st, p)
	if err != nil {
		return 0, err
	}
	sqlText := "SELECT COUNT(*) " + from + ";"

	h.engine.logger.Debug("Executing SQL COUNT", zap.String("sql", sqlText), zap.Any("params", st.args))

	var n int64
	if err := h.engine.runner().QueryRowContext(ctx, sqlText, st.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count on %s failed: %w", h.table, err)
	}
	return n, nil
}

// selectSQL renders the full SELECT statement.
func (h *Handle) selectSQL(st *statement, p *projection) (string, error) {
	d := h.engine.dialect

	fields := make([]string, len(p.outputs))
	for i, out := range p.outputs {
		source := p.table.Name
		if out.embed != nil {
			source = out.embed.name
		}
		fields[i] = fmt.Sprintf("%s.%s AS %s", d.QuoteIdentifier(source), d.QuoteIdentifier(out.field.Name), d.QuoteIdentifier(out.alias()))
	}

	from, err := h.fromWhere(st, p)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(fields, ", ") + " " + from)

	if len(h.orders) > 0 && !h.single {
		clauses := make([]string, len(h.orders))
		for i, o := range h.orders {
			column, _, _, err := p.column(d, o.column)
			if err != nil {
				return "", fmt.Errorf("order: %w", err)
			}
			direction := "DESC"
			if o.ascending {
				direction = "ASC"
			}
			clauses[i] = column + " " + direction + " NULLS LAST"
		}
		sb.WriteString(" ORDER BY " + strings.Join(clauses, ", "))
	}

	limit := h.limit
	if h.single {
		// Two rows are enough to tell one match from many.
		limit = minLimit(h.limit, 2)
	}
	if limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *limit))
	}
	if h.offset > 0 && !h.single {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", h.offset))
	}
	return sb.String() + ";", nil
}

// fromWhere renders the FROM clause with its joins and the WHERE clause.
// Filters on a left embed go into its ON clause, so that they null the
// embed instead of dropping the row; filters on an inner embed drop the row.
func (h *Handle) fromWhere(st *statement, p *projection) (string, error) {
	d := h.engine.dialect
	base := d.QuoteIdentifier(p.table.Name)

	type resolved struct {
		cond   condition
		column string
		field  *schema.FieldDefinition
		embed  *embed
	}
	all := make([]resolved, 0, len(h.where))
	for _, c := range h.where {
		column, field, e, err := p.column(d, c.column)
		if err != nil {
			return "", fmt.Errorf("filter: %w", err)
		}
		all = append(all, resolved{cond: c, column: column, field: field, embed: e})
	}

	var sb strings.Builder
	sb.WriteString("FROM " + base)

	for _, e := range p.embeds {
		join := "LEFT JOIN"
		if e.inner {
			join = "JOIN"
		}
		alias := d.QuoteIdentifier(e.name)
		sb.WriteString(fmt.Sprintf(" %s %s AS %s ON %s.%s = %s.%s",
			join, d.QuoteIdentifier(e.table.Name), alias,
			alias, d.QuoteIdentifier(e.rel.References),
			base, d.QuoteIdentifier(e.rel.Column)))

		if e.inner {
			continue
		}
		for _, r := range all {
			if r.embed != e {
				continue
			}
			clause, err := renderCondition(st, r.column, r.field, r.cond)
			if err != nil {
				return "", err
			}
			if clause != "" {
				sb.WriteString(" AND " + clause)
			}
		}
	}

	var where []string
	for _, r := range all {
		if r.embed != nil && !r.embed.inner {
			continue
		}
		clause, err := renderCondition(st, r.column, r.field, r.cond)
		if err != nil {
			return "", err
		}
		if clause != "" {
			where = append(where, clause)
		}
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	return sb.String(), nil
}

func renderCondition(st *statement, column string, field *schema.FieldDefinition, c condition) (string, error) {
	if c.op == query.OperatorOr {
		parts := make([]string, 0, len(c.conditions))
		for _, inner := range c.conditions {
			if inner.Operator == query.OperatorOr || inner.Operator == query.OperatorNot {
				return "", fmt.Errorf("%s inside or on %s: %w", inner.Operator, field.Name, query.ErrNestedLogical)
			}
			part, err := predicateSQL(st, column, field, inner.Operator, inner.Value)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		if len(parts) == 0 {
			return "", nil
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	}

	clause, err := predicateSQL(st, column, field, c.op, c.value)
	if err != nil {
		return "", err
	}
	if c.negated {
		return "NOT (" + clause + ")", nil
	}
	return clause, nil
}

// predicateSQL renders a single operator. Comparisons, in and is are the
// same in every dialect; the rest is left to the dialect.
func predicateSQL(st *statement, column string, field *schema.FieldDefinition, op query.Operator, value any) (string, error) {
	if sym, ok := comparisonOperators[op]; ok {
		marker, err := st.bindField(field, value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", column, sym, marker), nil
	}

	switch op {
	case query.OperatorIn:
		list, ok := listOperand(value)
		if !ok {
			return "", fmt.Errorf("in on %s expects a list, got %T: %w", field.Name, value, query.ErrInvalidOperand)
		}
		if len(list) == 0 {
			return "1=0", nil
		}
	case query.OperatorIs:
		switch v := value.(type) {
		case nil:
			return column + " IS NULL", nil
		case bool:
			if v {
				return column + " IS TRUE", nil
			}
			return column + " IS FALSE", nil
		default:
			return "", fmt.Errorf("is on %s expects a bool or null, got %T: %w", field.Name, value, query.ErrInvalidOperand)
		}
	case query.OperatorNot, query.OperatorOr:
		return "", fmt.Errorf("%s on %s: %w", op, field.Name, query.ErrNestedLogical)
	}

	if !op.IsValid() {
		return "", fmt.Errorf("%q on %s: %w", op, field.Name, query.ErrUnknownOperator)
	}
	return st.dialect.condition(st, column, field, op, value)
}

// insertSQL renders a multi-row INSERT returning every column of the table.
// A column set on some rows but missing from others is bound to its declared
// default, or null, on the rows that lack it.
func insertSQL(st *statement, def *schema.TableDefinition, rows []map[string]any) (string, error) {
	d := st.dialect

	fieldSet := make(map[string]bool)
	for _, row := range rows {
		for name := range row {
			if def.FindField(name) == nil {
				return "", fmt.Errorf("%s.%s: %w", def.Name, name, ErrUnknownColumn)
			}
			fieldSet[name] = true
		}
	}
	if len(fieldSet) == 0 {
		return "", fmt.Errorf("no columns to insert into %s", def.Name)
	}
	names := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		names = append(names, name)
	}
	sort.Strings(names)

	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdentifier(name)
	}

	values := make([]string, len(rows))
	for r, row := range rows {
		markers := make([]string, len(names))
		for i, name := range names {
			field := def.Fields[name]
			value, ok := row[name]
			if !ok {
				value = field.Default
			}
			marker, err := st.bindField(field, value)
			if err != nil {
				return "", fmt.Errorf("error preparing value for field '%s': %w", name, err)
			}
			markers[i] = marker
		}
		values[r] = "(" + strings.Join(markers, ", ") + ")"
	}

	returning := make([]string, 0, len(def.Fields))
	for _, name := range def.ColumnNames() {
		returning = append(returning, d.QuoteIdentifier(name))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING %s;",
		d.QuoteIdentifier(def.Name), strings.Join(quoted, ", "), strings.Join(values, ", "), strings.Join(returning, ", ")), nil
}
