package sqlengine

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
	"github.com/lib/pq"
)

// Postgres renders statements for github.com/lib/pq. Arrays of scalars are
// native array columns; other composite values are stored as jsonb.
func Postgres() Dialect {
	return postgresDialect{}
}

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (postgresDialect) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// nativeArray reports whether field is stored as a Postgres array.
func nativeArray(field *schema.FieldDefinition) bool {
	if field.Type != schema.FieldTypeArray && field.Type != schema.FieldTypeSet {
		return false
	}
	return field.ItemsType != nil && scalarType(*field.ItemsType) != ""
}

func scalarType(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return "TEXT"
	case schema.FieldTypeNumber:
		return "DOUBLE PRECISION"
	case schema.FieldTypeDecimal:
		return "NUMERIC"
	case schema.FieldTypeInteger:
		return "BIGINT"
	case schema.FieldTypeBoolean:
		return "BOOLEAN"
	}
	return ""
}

func (postgresDialect) ColumnType(field *schema.FieldDefinition) string {
	if nativeArray(field) {
		return scalarType(*field.ItemsType) + "[]"
	}
	if field.Type.IsComposite() {
		return "JSONB"
	}
	if t := scalarType(field.Type); t != "" {
		return t
	}
	return "BYTEA"
}

func (d postgresDialect) FormatDefault(field *schema.FieldDefinition, value any) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch {
	case nativeArray(field):
		list, ok := listOperand(value)
		if !ok {
			return "", fmt.Errorf("default for array column %s must be a list, got %T", field.Name, value)
		}
		literal, err := pq.Array(list).Value()
		if err != nil {
			return "", fmt.Errorf("failed to encode default for %s: %w", field.Name, err)
		}
		return pq.QuoteLiteral(fmt.Sprint(literal)), nil
	case field.Type.IsComposite():
		doc, err := toJSON(value)
		if err != nil {
			return "", err
		}
		return pq.QuoteLiteral(doc) + "::jsonb", nil
	}

	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return pq.QuoteLiteral(fmt.Sprintf("%v", value)), nil
	case schema.FieldTypeNumber, schema.FieldTypeInteger, schema.FieldTypeDecimal:
		return fmt.Sprintf("%v", value), nil
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "TRUE", nil
		}
		return "FALSE", nil
	default:
		return "", fmt.Errorf("unsupported type for default value: %s", field.Type)
	}
}

func (postgresDialect) PrepareValue(field *schema.FieldDefinition, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch {
	case nativeArray(field):
		list, ok := listOperand(value)
		if !ok {
			return nil, fmt.Errorf("expected list for column '%s', got %T", field.Name, value)
		}
		return pq.Array(list), nil
	case field.Type.IsComposite():
		return toJSON(value)
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected boolean for column '%s', got %T", field.Name, value)
	case schema.FieldTypeEnum:
		return fmt.Sprintf("%v", value), nil
	}
	return value, nil
}

// DecodeValue parses array literals through the lib/pq array scanners.
func (postgresDialect) DecodeValue(field *schema.FieldDefinition, raw any) any {
	if raw == nil {
		return nil
	}
	if nativeArray(field) {
		if list, err := scanArray(*field.ItemsType, raw); err == nil {
			return list
		}
		return raw
	}
	if field.Type.IsComposite() {
		return decodeJSON(raw)
	}
	return decodeScalar(field, raw)
}

func scanArray(items schema.FieldType, raw any) ([]any, error) {
	switch items {
	case schema.FieldTypeInteger:
		var a pq.Int64Array
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		return toAny([]int64(a)), nil
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		var a pq.Float64Array
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		return toAny([]float64(a)), nil
	case schema.FieldTypeBoolean:
		var a pq.BoolArray
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		return toAny([]bool(a)), nil
	default:
		var a pq.StringArray
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		return toAny([]string(a)), nil
	}
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

func (postgresDialect) TableExistsSQL() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1;"
}

var postgresRangeOperators = map[query.Operator]string{
	query.OperatorRangeGt:  ">>",
	query.OperatorRangeLt:  "<<",
	query.OperatorRangeGte: "&>",
	query.OperatorRangeLte: "&<",
}

func (d postgresDialect) condition(st *statement, column string, field *schema.FieldDefinition, op query.Operator, value any) (string, error) {
	switch op {
	case query.OperatorLike:
		return fmt.Sprintf("%s LIKE %s", column, st.bind(likePattern(value))), nil

	case query.OperatorIlike:
		return fmt.Sprintf("%s ILIKE %s", column, st.bind(likePattern(value))), nil

	case query.OperatorIn:
		list, _ := listOperand(value)
		prepared := make([]any, len(list))
		for i, v := range list {
			p, err := d.PrepareValue(field, v)
			if err != nil {
				return "", err
			}
			prepared[i] = p
		}
		return fmt.Sprintf("%s = ANY(%s)", column, st.bind(pq.Array(prepared))), nil

	case query.OperatorContains, query.OperatorContainedBy:
		sym := "@>"
		if op == query.OperatorContainedBy {
			sym = "<@"
		}
		return d.containment(st, column, field, sym, value)

	case query.OperatorTextSearch:
		return fmt.Sprintf("to_tsvector(%s) @@ to_tsquery(%s)", column, st.bind(fmt.Sprint(value))), nil
	}

	if sym, ok := postgresRangeOperators[op]; ok {
		return fmt.Sprintf("%s %s %s", column, sym, st.bind(fmt.Sprint(value))), nil
	}
	return "", unsupported(d, op, field)
}

func (d postgresDialect) containment(st *statement, column string, field *schema.FieldDefinition, sym string, value any) (string, error) {
	list, isList := listOperand(value)
	switch {
	case nativeArray(field) && isList:
		return fmt.Sprintf("%s %s %s", column, sym, st.bind(pq.Array(list))), nil
	case field.Type.IsComposite():
		doc, err := toJSON(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s::jsonb", column, sym, st.bind(doc)), nil
	case !isList && !objectOperand(value):
		// Range and other literal operands are compared in the column's own type.
		return fmt.Sprintf("%s %s %s", column, sym, st.bind(fmt.Sprint(value))), nil
	}
	return "", fmt.Errorf("%s operand %T on column %s: %w", sym, value, field.Name, ErrUnsupportedOperator)
}
