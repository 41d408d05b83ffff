package query

import (
	"context"
	"fmt"
	"strings"
)

// StepKind identifies the builder call a Step performs.
type StepKind string

// Builder calls a compiled plan can contain.
const (
	StepEq          StepKind = "eq"
	StepNeq         StepKind = "neq"
	StepLt          StepKind = "lt"
	StepGt          StepKind = "gt"
	StepLte         StepKind = "lte"
	StepGte         StepKind = "gte"
	StepLike        StepKind = "like"
	StepIlike       StepKind = "ilike"
	StepIn          StepKind = "in"
	StepContains    StepKind = "contains"
	StepContainedBy StepKind = "containedBy"
	StepRangeGt     StepKind = "rangeGt"
	StepRangeLt     StepKind = "rangeLt"
	StepRangeGte    StepKind = "rangeGte"
	StepRangeLte    StepKind = "rangeLte"
	StepTextSearch  StepKind = "textSearch"
	StepNot         StepKind = "not"
	StepIs          StepKind = "is"
	StepOr          StepKind = "or"
	StepOrder       StepKind = "order"
	StepRange       StepKind = "range"
	StepLimit       StepKind = "limit"
	StepMaybeSingle StepKind = "maybeSingle"
)

// Step is one builder call. Only the fields relevant to Kind are set.
type Step struct {
	Kind       StepKind
	Field      string
	Operator   Operator // negated operator, for StepNot
	Value      any
	Values     []any
	Conditions Conditions
	Ascending  bool
	From       int
	To         int
	N          int
}

// Apply performs the step on h and returns the resulting handle.
func (s Step) Apply(h Handle) Handle {
	switch s.Kind {
	case StepEq:
		return h.Eq(s.Field, s.Value)
	case StepNeq:
		return h.Neq(s.Field, s.Value)
	case StepLt:
		return h.Lt(s.Field, s.Value)
	case StepGt:
		return h.Gt(s.Field, s.Value)
	case StepLte:
		return h.Lte(s.Field, s.Value)
	case StepGte:
		return h.Gte(s.Field, s.Value)
	case StepLike:
		return h.Like(s.Field, s.Value)
	case StepIlike:
		return h.Ilike(s.Field, s.Value)
	case StepIn:
		return h.In(s.Field, s.Values)
	case StepContains:
		return h.Contains(s.Field, s.Value)
	case StepContainedBy:
		return h.ContainedBy(s.Field, s.Values)
	case StepRangeGt:
		return h.RangeGt(s.Field, s.Value)
	case StepRangeLt:
		return h.RangeLt(s.Field, s.Value)
	case StepRangeGte:
		return h.RangeGte(s.Field, s.Value)
	case StepRangeLte:
		return h.RangeLte(s.Field, s.Value)
	case StepTextSearch:
		return h.TextSearch(s.Field, s.Value)
	case StepNot:
		return h.Not(s.Field, s.Operator, s.Value)
	case StepIs:
		return h.Is(s.Field, s.Value)
	case StepOr:
		return h.Or(s.Field, s.Conditions)
	case StepOrder:
		return h.Order(s.Field, s.Ascending)
	case StepRange:
		return h.Range(s.From, s.To)
	case StepLimit:
		return h.Limit(s.N)
	case StepMaybeSingle:
		return h.MaybeSingle()
	default:
		panic(fmt.Sprintf("query: unhandled step kind %q", s.Kind))
	}
}

// String renders the step as a call, e.g. gte(id, 0).
func (s Step) String() string {
	switch s.Kind {
	case StepIn, StepContainedBy:
		return fmt.Sprintf("%s(%s, %v)", s.Kind, s.Field, s.Values)
	case StepNot:
		return fmt.Sprintf("not(%s, %s, %v)", s.Field, s.Operator, formatValue(s.Value))
	case StepOr:
		parts := make([]string, len(s.Conditions))
		for i, c := range s.Conditions {
			parts[i] = fmt.Sprintf("%s %v", c.Operator, formatValue(c.Value))
		}
		return fmt.Sprintf("or(%s, [%s])", s.Field, strings.Join(parts, "; "))
	case StepOrder:
		return fmt.Sprintf("order(%s, ascending=%t)", s.Field, s.Ascending)
	case StepRange:
		return fmt.Sprintf("range(%d, %d)", s.From, s.To)
	case StepLimit:
		return fmt.Sprintf("limit(%d)", s.N)
	case StepMaybeSingle:
		return "maybeSingle()"
	default:
		return fmt.Sprintf("%s(%s, %v)", s.Kind, s.Field, formatValue(s.Value))
	}
}

func formatValue(v any) any {
	if v == nil {
		return "null"
	}
	return v
}

// Plan is a compiled descriptor. It holds no engine state and can be applied
// any number of times.
type Plan struct {
	Table  string
	Select string
	Count  CountType
	Steps  []Step
	Single bool
}

// Apply folds the steps onto h in order.
func (p *Plan) Apply(h Handle) Handle {
	for _, step := range p.Steps {
		h = step.Apply(h)
	}
	return h
}

// Execute starts the query on client, applies the plan and runs it.
func (p *Plan) Execute(ctx context.Context, client Client) Response {
	h := client.From(p.Table).Select(p.Select, p.Count)
	return p.Apply(h).Execute(ctx)
}

// String lists the select string followed by one step per line.
func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "from(%s)\nselect(%s, count=%s)\n", p.Table, p.Select, p.Count)
	for _, step := range p.Steps {
		sb.WriteString(step.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
