package postgrest

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/asaidimu/go-dataloader/core/query"
)

// reserved matches characters that must be quoted inside PostgREST list and
// logic-tree literals.
var reserved = regexp.MustCompile(`[,(){}"\s]`)

// operatorCodes maps descriptor operators to PostgREST filter codes.
var operatorCodes = map[query.Operator]string{
	query.OperatorEq:          "eq",
	query.OperatorNeq:         "neq",
	query.OperatorLt:          "lt",
	query.OperatorGt:          "gt",
	query.OperatorLte:         "lte",
	query.OperatorGte:         "gte",
	query.OperatorLike:        "like",
	query.OperatorIlike:       "ilike",
	query.OperatorIn:          "in",
	query.OperatorContains:    "cs",
	query.OperatorContainedBy: "cd",
	query.OperatorRangeGt:     "sr",
	query.OperatorRangeLt:     "sl",
	query.OperatorRangeGte:    "nxl",
	query.OperatorRangeLte:    "nxr",
	query.OperatorTextSearch:  "fts",
	query.OperatorIs:          "is",
}

// filter is one encoded predicate: column, PostgREST code and literal.
type filter struct {
	column  string
	negated bool
	code    string
	literal string
}

// expr renders the filter in logic-tree form, e.g. id.not.eq.3.
func (f filter) expr() string {
	if f.negated {
		return fmt.Sprintf("%s.not.%s.%s", f.column, f.code, f.literal)
	}
	return fmt.Sprintf("%s.%s.%s", f.column, f.code, f.literal)
}

// encodeFilter turns a descriptor predicate into its PostgREST form.
func encodeFilter(column string, op query.Operator, value any) (filter, error) {
	code, ok := operatorCodes[op]
	if !ok {
		return filter{}, fmt.Errorf("operator %q has no PostgREST form: %w", op, query.ErrUnknownOperator)
	}

	var literal string
	switch op {
	case query.OperatorIn:
		values, ok := list(value)
		if !ok {
			return filter{}, fmt.Errorf("in on %s expects a list, got %T: %w", column, value, query.ErrInvalidOperand)
		}
		literal = "(" + joinQuoted(values) + ")"
	case query.OperatorContains, query.OperatorContainedBy:
		if values, ok := list(value); ok {
			literal = "{" + joinQuoted(values) + "}"
		} else if isObject(value) {
			b, err := json.Marshal(value)
			if err != nil {
				return filter{}, fmt.Errorf("failed to encode %s operand for %s: %w", op, column, err)
			}
			literal = string(b)
		} else {
			literal = scalar(value)
		}
	default:
		literal = scalar(value)
	}

	return filter{column: column, code: code, literal: literal}, nil
}

// scalar formats a single operand the way PostgREST expects it in a query
// string. Nil becomes null; structured values are sent as JSON.
func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "null"
		}
		return scalar(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(v)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// quoted formats an operand for use inside a list or logic tree.
func quoted(v any) string {
	s := scalar(v)
	if !reserved.MatchString(s) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func joinQuoted(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = quoted(v)
	}
	return strings.Join(parts, ",")
}

// treeLiteral quotes a scalar literal that would otherwise break a logic
// tree. List literals are already delimited.
func treeLiteral(f filter) filter {
	switch f.code {
	case "in", "cs", "cd":
		return f
	}
	if reserved.MatchString(f.literal) {
		f.literal = quoted(f.literal)
	}
	return f
}

func list(v any) ([]any, bool) {
	if values, ok := v.([]any); ok {
		return values, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isObject(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return false
	}
	return rv.Kind() == reflect.Map || (rv.Kind() == reflect.Struct && rv.Type() != reflect.TypeOf(time.Time{}))
}
