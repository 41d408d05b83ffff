package sqlengine

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
)

// SQLite renders statements for github.com/mattn/go-sqlite3. Composite
// columns are stored as JSON text and queried through json_each.
func SQLite() Dialect {
	return sqliteDialect{}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite3" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// ColumnType maps a field to its SQLite storage class.
func (sqliteDialect) ColumnType(field *schema.FieldDefinition) string {
	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return "TEXT"
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
		return "TEXT"
	default:
		return "BLOB"
	}
}

func (sqliteDialect) FormatDefault(field *schema.FieldDefinition, value any) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return quoteLiteral(fmt.Sprintf("%v", value)), nil
	case schema.FieldTypeNumber, schema.FieldTypeInteger, schema.FieldTypeDecimal:
		return fmt.Sprintf("%v", value), nil
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "1", nil
		}
		return "0", nil
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
		doc, err := toJSON(value)
		if err != nil {
			return "", err
		}
		return quoteLiteral(doc), nil
	default:
		return "", fmt.Errorf("unsupported type for default value: %s", field.Type)
	}
}

// PrepareValue stores booleans as 0/1 and composite values as JSON text.
func (sqliteDialect) PrepareValue(field *schema.FieldDefinition, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return 1, nil
			case "false":
				return 0, nil
			}
		case int, int64:
			return v, nil
		case float64:
			if v == 1.0 {
				return 1, nil
			}
			if v == 0.0 {
				return 0, nil
			}
		}
		return nil, fmt.Errorf("expected boolean for column '%s', got %T", field.Name, value)

	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
		return toJSON(value)

	case schema.FieldTypeEnum:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", value), nil

	default:
		return value, nil
	}
}

func (sqliteDialect) DecodeValue(field *schema.FieldDefinition, raw any) any {
	if raw == nil {
		return nil
	}
	if field.Type.IsComposite() {
		return decodeJSON(raw)
	}
	return decodeScalar(field, raw)
}

func (sqliteDialect) TableExistsSQL() string {
	return "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;"
}

func (d sqliteDialect) condition(st *statement, column string, field *schema.FieldDefinition, op query.Operator, value any) (string, error) {
	switch op {
	case query.OperatorLike:
		return fmt.Sprintf("%s GLOB %s", column, st.bind(globPattern(fmt.Sprint(value)))), nil

	case query.OperatorIlike:
		return fmt.Sprintf("lower(%s) LIKE lower(%s)", column, st.bind(likePattern(value))), nil

	case query.OperatorIn:
		list, _ := listOperand(value)
		markers := make([]string, len(list))
		for i, v := range list {
			marker, err := st.bindField(field, v)
			if err != nil {
				return "", err
			}
			markers[i] = marker
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(markers, ", ")), nil

	case query.OperatorContains:
		if !field.Type.IsComposite() {
			return "", unsupported(d, op, field)
		}
		if list, ok := listOperand(value); ok {
			doc, err := toJSON(list)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(
				"(%s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM json_each(%s) AS want WHERE want.value NOT IN (SELECT have.value FROM json_each(%s) AS have)))",
				column, st.bind(doc), column), nil
		}
		if objectOperand(value) {
			doc, err := toJSON(value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(
				"(%s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM json_each(%s) AS want WHERE NOT EXISTS (SELECT 1 FROM json_each(%s) AS have WHERE have.key = want.key AND have.value IS want.value)))",
				column, st.bind(doc), column), nil
		}
		return "", unsupported(d, op, field)

	case query.OperatorContainedBy:
		list, ok := listOperand(value)
		if !ok || !field.Type.IsComposite() {
			return "", unsupported(d, op, field)
		}
		doc, err := toJSON(list)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"(%s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM json_each(%s) AS have WHERE have.value NOT IN (SELECT want.value FROM json_each(%s) AS want)))",
			column, column, st.bind(doc)), nil
	}
	return "", unsupported(d, op, field)
}

// globPattern translates a LIKE pattern into GLOB syntax so that matching
// stays case-sensitive. "*" is kept as a wildcard.
func globPattern(like string) string {
	var b strings.Builder
	for _, r := range like {
		switch r {
		case '%', '*':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		case '?', '[', ']':
			b.WriteString("[" + string(r) + "]")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
