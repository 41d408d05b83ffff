package query_test

import (
	"context"
	"testing"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/query/querytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run compiles props, executes them against a recording client and returns
// the rendered calls.
func run(t *testing.T, props query.Props) (*querytest.Client, []string) {
	t.Helper()
	plan, err := query.NewCompiler(nil).Compile(props)
	require.NoError(t, err)
	client := querytest.NewClient(query.Response{})
	plan.Execute(context.Background(), client)
	return client, client.Methods()
}

func where(field string, preds ...query.Predicate) query.Filter {
	return query.Filter{{Field: field, Predicates: preds}}
}

func TestCompile_WildcardWithoutFilters(t *testing.T) {
	client, calls := run(t, query.Props{Table: "tasks"})
	assert.Equal(t, "tasks", client.Table())
	assert.Equal(t, "*", client.Select())
	assert.Empty(t, calls)
}

func TestCompile_MissingTable(t *testing.T) {
	_, err := query.NewCompiler(nil).Compile(query.Props{})
	assert.ErrorIs(t, err, query.ErrMissingTable)
}

func TestCompile_CountPassedThrough(t *testing.T) {
	client, _ := run(t, query.Props{Table: "tasks", Count: query.CountEstimated})
	assert.Equal(t, query.CountEstimated, client.Count())
}

func TestCompileFilter_TwoPredicatesOnOneField(t *testing.T) {
	_, calls := run(t, query.Props{
		Table: "tasks",
		Where: where("id", query.Gte(0), query.Lte(3)),
	})
	assert.Equal(t, []string{"gte(id, 0)", "lte(id, 3)"}, calls)
}

func TestCompileFilter_FieldOrderIsInputOrder(t *testing.T) {
	_, calls := run(t, query.Props{
		Table: "tasks",
		Where: query.Filter{
			{Field: "name", Predicates: []query.Predicate{query.Ilike("%a%")}},
			{Field: "id", Predicates: []query.Predicate{query.Neq(7)}},
			{Field: "account_id", Predicates: []query.Predicate{query.Eq("acc")}},
		},
	})
	assert.Equal(t, []string{"ilike(name, %a%)", "neq(id, 7)", "eq(account_id, acc)"}, calls)
}

func TestCompileFilter_AbsenceRules(t *testing.T) {
	tests := []struct {
		name     string
		pred     query.Predicate
		expected []string
	}{
		{"eq undefined", query.Eq(query.Undefined), nil},
		{"eq null", query.Eq(nil), nil},
		{"eq nil pointer", query.Eq((*string)(nil)), nil},
		{"eq zero", query.Eq(0), []string{"eq(f, 0)"}},
		{"eq false", query.Eq(false), []string{"eq(f, false)"}},
		{"neq null", query.Neq(nil), nil},
		{"lt undefined", query.Lt(query.Undefined), nil},
		{"lt null", query.Lt(nil), []string{"lt(f, null)"}},
		{"gt zero", query.Gt(0), []string{"gt(f, 0)"}},
		{"gte empty string", query.Gte(""), []string{"gte(f, )"}},
		{"like null", query.Like(nil), []string{"like(f, null)"}},
		{"ilike undefined", query.Ilike(query.Undefined), nil},
		{"text search", query.TextSearch("fat & cat"), []string{"textSearch(f, fat & cat)"}},
		{"range gte", query.RangeGte("[1,5)"), []string{"rangeGte(f, [1,5))"}},
		{"range lt undefined", query.RangeLt(query.Undefined), nil},
		{"in list", query.In(1, 2), []string{"in(f, [1 2])"}},
		{"in typed slice", query.Predicate{Operator: query.OperatorIn, Value: []string{"a", "b"}}, []string{"in(f, [a b])"}},
		{"in non list", query.Predicate{Operator: query.OperatorIn, Value: "a"}, nil},
		{"in undefined", query.Predicate{Operator: query.OperatorIn, Value: query.Undefined}, nil},
		{"contains list", query.Contains([]any{"x"}), []string{"contains(f, [x])"}},
		{"contains object", query.Contains(map[string]any{"k": 1}), []string{"contains(f, map[k:1])"}},
		{"contains undefined", query.Contains(query.Undefined), nil},
		{"contained by list", query.ContainedBy("a", "b"), []string{"containedBy(f, [a b])"}},
		{"contained by non list", query.Predicate{Operator: query.OperatorContainedBy, Value: "a"}, nil},
		{"is true", query.Is(true), []string{"is(f, true)"}},
		{"is null", query.Is(nil), []string{"is(f, null)"}},
		{"is bool pointer", query.Is(query.BoolPtr(false)), []string{"is(f, false)"}},
		{"is non bool", query.Is("yes"), nil},
		{"is undefined", query.Is(query.Undefined), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, calls := run(t, query.Props{Table: "t", Where: where("f", tt.pred)})
			assert.Equal(t, tt.expected, nilIfEmpty(calls))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestCompileFilter_Not(t *testing.T) {
	_, calls := run(t, query.Props{
		Table: "tasks",
		Where: where("status",
			query.Not(query.Eq("done"), query.In("a", "b"), query.Is(nil), query.Eq(nil), query.Lt(query.Undefined)),
		),
	})
	assert.Equal(t, []string{
		"not(status, eq, done)",
		"not(status, in, [a b])",
		"not(status, is, null)",
	}, calls)
}

func TestCompileFilter_NestedLogicalRejected(t *testing.T) {
	c := query.NewCompiler(nil)

	_, err := c.CompileFilter(where("f", query.Not(query.Not(query.Eq(1)))))
	assert.ErrorIs(t, err, query.ErrNestedLogical)

	_, err = c.CompileFilter(where("f", query.Or(query.Eq(1), query.Or(query.Eq(2)))))
	assert.ErrorIs(t, err, query.ErrNestedLogical)
}

func TestCompileFilter_InvalidLogicalOperand(t *testing.T) {
	_, err := query.NewCompiler(nil).CompileFilter(where("f", query.Predicate{Operator: query.OperatorNot, Value: "x"}))
	assert.ErrorIs(t, err, query.ErrInvalidOperand)
}

func TestCompileFilter_UnknownOperator(t *testing.T) {
	_, err := query.NewCompiler(nil).CompileFilter(where("f", query.Predicate{Operator: "between", Value: 1}))
	assert.ErrorIs(t, err, query.ErrUnknownOperator)
}

func TestCompileFilter_Or(t *testing.T) {
	steps, err := query.NewCompiler(nil).CompileFilter(where("status",
		query.Or(query.Eq("open"), query.Eq(nil), query.In("a", "b"), query.Is(true)),
	))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, query.StepOr, steps[0].Kind)
	assert.Equal(t, query.Conditions{
		{Operator: query.OperatorEq, Value: "open"},
		{Operator: query.OperatorIn, Value: []any{"a", "b"}},
		{Operator: query.OperatorIs, Value: true},
	}, steps[0].Conditions)
}

func TestCompileFilter_OrWithNothingLeftIsSkipped(t *testing.T) {
	steps, err := query.NewCompiler(nil).CompileFilter(where("status", query.Or(query.Eq(nil))))
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestCompileFilter_EveryOperatorDispatches(t *testing.T) {
	operands := map[query.Operator]any{
		query.OperatorIn:          []any{1},
		query.OperatorContainedBy: []any{1},
		query.OperatorIs:          true,
		query.OperatorNot:         query.Conditions{query.Eq(1)},
		query.OperatorOr:          query.Conditions{query.Eq(1)},
	}
	c := query.NewCompiler(nil)
	for _, op := range query.Operators() {
		t.Run(string(op), func(t *testing.T) {
			value, ok := operands[op]
			if !ok {
				value = 1
			}
			steps, err := c.CompileFilter(where("f", query.Predicate{Operator: op, Value: value}))
			require.NoError(t, err)
			require.Len(t, steps, 1)
			assert.Equal(t, string(op), string(steps[0].Kind))

			client := querytest.NewClient(query.Response{})
			h := client.From("t").Select("*", "")
			h = steps[0].Apply(h)
			rec := h.(*querytest.Handle).Recorded()
			require.Len(t, rec, 1)
			assert.Equal(t, string(op), rec[0].Method)
		})
	}
}

func TestCompile_SortAndPagination(t *testing.T) {
	_, calls := run(t, query.Props{
		Table: "tasks",
		Sort: []query.SortConfiguration{
			{Field: "created_at", Direction: query.SortDirectionDesc},
			{Field: "name", Direction: query.SortDirectionAsc},
		},
		Page:  query.IntPtr(3),
		Limit: query.IntPtr(10),
	})
	assert.Equal(t, []string{
		"order(created_at, false)",
		"order(name, true)",
		"range(20, 30)",
		"limit(10)",
	}, calls)
}

func TestCompile_PaginationPresence(t *testing.T) {
	tests := []struct {
		name     string
		page     *int
		limit    *int
		expected []string
	}{
		{"limit only", nil, query.IntPtr(5), []string{"limit(5)"}},
		{"page only", query.IntPtr(2), nil, nil},
		{"first page", query.IntPtr(1), query.IntPtr(8), []string{"range(0, 8)", "limit(8)"}},
		{"zero limit", query.IntPtr(1), query.IntPtr(0), []string{"range(0, 0)", "limit(0)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, calls := run(t, query.Props{Table: "t", Page: tt.page, Limit: tt.limit})
			assert.Equal(t, tt.expected, nilIfEmpty(calls))
		})
	}
}

func TestCompile_SingleSuppressesSortAndPagination(t *testing.T) {
	_, calls := run(t, query.Props{
		Table:  "accounts",
		Where:  where("id", query.Eq("a1")),
		Sort:   []query.SortConfiguration{{Field: "name", Direction: query.SortDirectionAsc}},
		Page:   query.IntPtr(2),
		Limit:  query.IntPtr(10),
		Single: true,
	})
	assert.Equal(t, []string{"eq(id, a1)", "maybeSingle()"}, calls)
}

func TestCompile_Idempotent(t *testing.T) {
	props := query.Props{
		Table:  "tasks",
		Select: query.Columns("id", "name", "user_id.onboarded", "user_id.id"),
		Where: query.Filter{
			{Field: "id", Predicates: []query.Predicate{query.Gte(0), query.Lte(3)}},
			{Field: "name", Predicates: []query.Predicate{query.Not(query.Eq("x"), query.Like("y%"))}},
		},
		Sort:  []query.SortConfiguration{{Field: "id", Direction: query.SortDirectionAsc}},
		Page:  query.IntPtr(2),
		Limit: query.IntPtr(4),
	}
	c := query.NewCompiler(nil)
	first, err := c.Compile(props)
	require.NoError(t, err)
	second, err := c.Compile(props)
	require.NoError(t, err)

	assert.Equal(t, "id,name,user_id !inner (onboarded,id)", first.Select)
	assert.Equal(t, first.Select, second.Select)
	assert.Equal(t, first.Steps, second.Steps)
	assert.Equal(t, first.String(), second.String())
}

func TestPlan_ApplyLeavesHandleUntouched(t *testing.T) {
	plan, err := query.NewCompiler(nil).Compile(query.Props{
		Table: "t",
		Where: where("a", query.Eq(1), query.Gt(2)),
	})
	require.NoError(t, err)

	client := querytest.NewClient(query.Response{})
	base := client.From("t").Select("*", "")
	applied := plan.Apply(base)

	assert.Empty(t, base.(*querytest.Handle).Recorded())
	assert.Len(t, applied.(*querytest.Handle).Recorded(), 2)
}

func TestPlan_String(t *testing.T) {
	plan, err := query.NewCompiler(nil).Compile(query.Props{
		Table: "tasks",
		Where: where("done", query.Is(nil)),
		Limit: query.IntPtr(2),
		Count: query.CountExact,
	})
	require.NoError(t, err)
	assert.Equal(t, "from(tasks)\nselect(*, count=exact)\nis(done, null)\nlimit(2)\n", plan.String())
}
