package query

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrMissingTable is returned when a descriptor names no table.
	ErrMissingTable = errors.New("table name is required")
	// ErrUnknownOperator is returned for an operator the compiler cannot dispatch.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrNestedLogical is returned when not or or appears inside not or or.
	ErrNestedLogical = errors.New("logical operators cannot be nested")
	// ErrInvalidOperand is returned when not or or is given something other
	// than a list of predicates.
	ErrInvalidOperand = errors.New("invalid operand")
)

// Compiler turns descriptors into plans. It is stateless apart from its
// logger and safe for concurrent use.
type Compiler struct {
	logger *zap.Logger
}

// NewCompiler creates a compiler. A nil logger disables logging.
func NewCompiler(logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{logger: logger}
}

// Compile builds the plan for props: select string, filter calls, then either
// the sort and pagination calls or, for a single-row descriptor, maybeSingle.
func (c *Compiler) Compile(props Props) (*Plan, error) {
	if props.Table == "" {
		return nil, ErrMissingTable
	}

	sel, err := BuildSelect(props.Select, props.Join)
	if err != nil {
		return nil, fmt.Errorf("failed to build select for %s: %w", props.Table, err)
	}

	steps, err := c.CompileFilter(props.Where)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter for %s: %w", props.Table, err)
	}

	if props.Single {
		steps = append(steps, Step{Kind: StepMaybeSingle})
	} else {
		steps = append(steps, CompileSort(props.Sort)...)
		steps = append(steps, CompilePagination(props.Page, props.Limit)...)
	}

	c.logger.Debug("Compiled query",
		zap.String("table", props.Table),
		zap.String("select", sel),
		zap.Int("steps", len(steps)),
		zap.Bool("single", props.Single),
	)

	return &Plan{
		Table:  props.Table,
		Select: sel,
		Count:  props.Count,
		Steps:  steps,
		Single: props.Single,
	}, nil
}

// CompileFilter emits the filter calls for filter, fields first and then
// predicates, both in input order. Predicates whose operand is absent, or of
// the wrong shape for their operator, produce no call.
func (c *Compiler) CompileFilter(filter Filter) ([]Step, error) {
	var steps []Step
	for _, ff := range filter {
		if ff.Field == "" {
			return nil, fmt.Errorf("filter field name cannot be empty")
		}
		for _, p := range ff.Predicates {
			s, err := c.compilePredicate(ff.Field, p)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", ff.Field, err)
			}
			steps = append(steps, s...)
		}
	}
	return steps, nil
}

func (c *Compiler) compilePredicate(field string, p Predicate) ([]Step, error) {
	switch p.Operator {
	case OperatorNot:
		return c.compileNot(field, p.Value)
	case OperatorOr:
		step, ok, err := c.compileOr(field, p.Value)
		if err != nil || !ok {
			return nil, err
		}
		return []Step{step}, nil
	}

	kind, err := stepKind(p.Operator)
	if err != nil {
		return nil, err
	}
	value, values, ok := c.operand(field, p.Operator, p.Value)
	if !ok {
		return nil, nil
	}
	return []Step{{Kind: kind, Field: field, Value: value, Values: values}}, nil
}

// compileNot emits one negated call per inner predicate.
func (c *Compiler) compileNot(field string, operand any) ([]Step, error) {
	if IsUndefined(operand) {
		return nil, nil
	}
	conds, err := asConditions(operand)
	if err != nil {
		return nil, fmt.Errorf("not: %w", err)
	}

	var steps []Step
	for _, inner := range conds {
		if inner.Operator.isLogical() {
			return nil, fmt.Errorf("not(%s): %w", inner.Operator, ErrNestedLogical)
		}
		if _, err := stepKind(inner.Operator); err != nil {
			return nil, err
		}
		value, values, ok := c.operand(field, inner.Operator, inner.Value)
		if !ok {
			continue
		}
		if values != nil {
			value = values
		}
		steps = append(steps, Step{Kind: StepNot, Field: field, Operator: inner.Operator, Value: value})
	}
	return steps, nil
}

// compileOr emits a single call holding every surviving inner predicate.
func (c *Compiler) compileOr(field string, operand any) (Step, bool, error) {
	if IsUndefined(operand) {
		return Step{}, false, nil
	}
	conds, err := asConditions(operand)
	if err != nil {
		return Step{}, false, fmt.Errorf("or: %w", err)
	}

	var kept Conditions
	for _, inner := range conds {
		if inner.Operator.isLogical() {
			return Step{}, false, fmt.Errorf("or(%s): %w", inner.Operator, ErrNestedLogical)
		}
		if _, err := stepKind(inner.Operator); err != nil {
			return Step{}, false, err
		}
		value, values, ok := c.operand(field, inner.Operator, inner.Value)
		if !ok {
			continue
		}
		if values != nil {
			value = values
		}
		kept = append(kept, Predicate{Operator: inner.Operator, Value: value})
	}
	if len(kept) == 0 {
		return Step{}, false, nil
	}
	return Step{Kind: StepOr, Field: field, Conditions: kept}, true, nil
}

// operand applies the absence and type rules of op to v. List operators
// return their operand in values; everything else in value. ok is false when
// the predicate must not produce a call.
func (c *Compiler) operand(field string, op Operator, v any) (value any, values []any, ok bool) {
	if IsUndefined(v) {
		return nil, nil, false
	}

	switch op {
	case OperatorEq, OperatorNeq:
		if isNil(v) {
			return nil, nil, false
		}
		return v, nil, true
	case OperatorIn, OperatorContainedBy:
		list, isList := toList(v)
		if !isList {
			c.logger.Debug("Skipping predicate with non-list operand",
				zap.String("field", field), zap.String("operator", string(op)))
			return nil, nil, false
		}
		return nil, list, true
	case OperatorIs:
		b, isBool := toBoolOrNil(v)
		if !isBool {
			c.logger.Debug("Skipping is predicate with non-boolean operand",
				zap.String("field", field), zap.Any("value", v))
			return nil, nil, false
		}
		return b, nil, true
	default:
		return v, nil, true
	}
}

func stepKind(op Operator) (StepKind, error) {
	switch op {
	case OperatorEq:
		return StepEq, nil
	case OperatorNeq:
		return StepNeq, nil
	case OperatorLt:
		return StepLt, nil
	case OperatorGt:
		return StepGt, nil
	case OperatorLte:
		return StepLte, nil
	case OperatorGte:
		return StepGte, nil
	case OperatorLike:
		return StepLike, nil
	case OperatorIlike:
		return StepIlike, nil
	case OperatorIn:
		return StepIn, nil
	case OperatorContains:
		return StepContains, nil
	case OperatorContainedBy:
		return StepContainedBy, nil
	case OperatorRangeGt:
		return StepRangeGt, nil
	case OperatorRangeLt:
		return StepRangeLt, nil
	case OperatorRangeGte:
		return StepRangeGte, nil
	case OperatorRangeLte:
		return StepRangeLte, nil
	case OperatorTextSearch:
		return StepTextSearch, nil
	case OperatorNot:
		return StepNot, nil
	case OperatorOr:
		return StepOr, nil
	case OperatorIs:
		return StepIs, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

func asConditions(v any) (Conditions, error) {
	switch conds := v.(type) {
	case Conditions:
		return conds, nil
	case []Predicate:
		return Conditions(conds), nil
	case Predicate:
		return Conditions{conds}, nil
	default:
		return nil, fmt.Errorf("%w: expected a list of predicates, got %T", ErrInvalidOperand, v)
	}
}

// CompileSort emits one order call per entry, ascending only for "asc".
func CompileSort(sort []SortConfiguration) []Step {
	steps := make([]Step, 0, len(sort))
	for _, s := range sort {
		steps = append(steps, Step{
			Kind:      StepOrder,
			Field:     s.Field,
			Ascending: s.Direction == SortDirectionAsc,
		})
	}
	return steps
}

// CompilePagination emits range((page-1)*limit, (page-1)*limit+limit) when
// both page and limit are set, followed by limit(limit) whenever limit is set.
func CompilePagination(page, limit *int) []Step {
	var steps []Step
	if page != nil && limit != nil {
		start := (*page - 1) * *limit
		steps = append(steps, Step{Kind: StepRange, From: start, To: start + *limit})
	}
	if limit != nil {
		steps = append(steps, Step{Kind: StepLimit, N: *limit})
	}
	return steps
}
