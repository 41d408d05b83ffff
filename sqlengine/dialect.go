package sqlengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
)

// ErrUnsupportedOperator is reported when a dialect has no rendering for an
// operator or operand, such as range operators on SQLite.
var ErrUnsupportedOperator = errors.New("operator is not supported by this dialect")

// Dialect renders the parts of a statement that differ between databases.
// SQLite and Postgres are provided; the interface is sealed by the statement
// type it renders into.
type Dialect interface {
	// Name identifies the dialect in logs and errors.
	Name() string
	// DriverName is the database/sql driver the dialect is used with.
	DriverName() string
	// Placeholder returns the bind marker for the n-th argument, counted from 1.
	Placeholder(n int) string
	QuoteIdentifier(name string) string
	ColumnType(field *schema.FieldDefinition) string
	FormatDefault(field *schema.FieldDefinition, value any) (string, error)
	// PrepareValue converts a Go value into what the driver stores for field.
	PrepareValue(field *schema.FieldDefinition, value any) (any, error)
	// DecodeValue converts a scanned value back into its Go form.
	DecodeValue(field *schema.FieldDefinition, raw any) any
	// TableExistsSQL is a query taking the table name and returning a row
	// when the table exists.
	TableExistsSQL() string

	// condition renders the operators whose SQL differs between dialects.
	condition(st *statement, column string, field *schema.FieldDefinition, op query.Operator, value any) (string, error)
}

// statement collects the bind arguments of a statement as it is rendered.
// Arguments must be bound in the order their markers appear in the text.
type statement struct {
	dialect Dialect
	args    []any
}

func newStatement(d Dialect) *statement {
	return &statement{dialect: d}
}

func (st *statement) bind(v any) string {
	st.args = append(st.args, v)
	return st.dialect.Placeholder(len(st.args))
}

// bindField prepares v for field before binding it.
func (st *statement) bindField(field *schema.FieldDefinition, v any) (string, error) {
	prepared, err := st.dialect.PrepareValue(field, v)
	if err != nil {
		return "", err
	}
	return st.bind(prepared), nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// listOperand returns the elements of a slice or array, or false.
func listOperand(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
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

func objectOperand(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %T as JSON: %w", v, err)
	}
	return string(b), nil
}

// decodeJSON decodes a JSON document stored as text, returning raw unchanged
// when it is not one.
func decodeJSON(raw any) any {
	var b []byte
	switch v := raw.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return raw
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return raw
	}
	return decoded
}

// decodeScalar applies the conversions shared by both dialects.
func decodeScalar(field *schema.FieldDefinition, raw any) any {
	switch field.Type {
	case schema.FieldTypeBoolean:
		switch v := raw.(type) {
		case int64:
			return v != 0
		case bool:
			return v
		}
	case schema.FieldTypeString, schema.FieldTypeEnum:
		if b, ok := raw.([]byte); ok {
			return string(b)
		}
	case schema.FieldTypeInteger:
		switch v := raw.(type) {
		case float64:
			return int64(v)
		case []byte:
			if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
				return n
			}
		}
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		switch v := raw.(type) {
		case int64:
			return float64(v)
		case []byte:
			if f, err := strconv.ParseFloat(string(v), 64); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return raw
}

// likePattern maps the "*" wildcard PostgREST accepts onto SQL's "%".
func likePattern(v any) string {
	return strings.ReplaceAll(fmt.Sprint(v), "*", "%")
}

func unsupported(d Dialect, op query.Operator, field *schema.FieldDefinition) error {
	return fmt.Errorf("%s on column %s (%s): %w", op, field.Name, d.Name(), ErrUnsupportedOperator)
}
