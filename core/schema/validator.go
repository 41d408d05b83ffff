package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator checks rows against a table definition before they are written.
// It reports type mismatches, missing required columns, enum violations and
// duplicate set members, and coerces string values where the column type
// allows it.
type Validator struct {
	table  *TableDefinition
	issues []Issue
}

// NewValidator creates a validator for table. The returned validator can be
// reused but is not safe for concurrent use.
func NewValidator(table *TableDefinition) *Validator {
	return &Validator{
		table:  table,
		issues: make([]Issue, 0),
	}
}

// Validate checks row and returns whether it is valid along with any issues.
// With loose set, missing required columns are not reported. Coerced values
// are written back into row.
func (v *Validator) Validate(row map[string]any, loose bool) (bool, []Issue) {
	v.issues = make([]Issue, 0)

	v.validateRow(row)

	finalIssues := v.issues
	if loose {
		filtered := make([]Issue, 0, len(v.issues))
		for _, issue := range v.issues {
			if issue.Code != "REQUIRED_FIELD_MISSING" {
				filtered = append(filtered, issue)
			}
		}
		finalIssues = filtered
	}

	return len(finalIssues) == 0, finalIssues
}

func (v *Validator) validateRow(row map[string]any) {
	for _, name := range v.table.ColumnNames() {
		field := v.table.Fields[name]
		value, exists := row[name]

		if !exists {
			if field.IsRequired() && field.Default == nil {
				v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", name), name)
			}
			continue
		}

		if coerced, ok := v.validateValue(value, field, name); ok {
			row[name] = coerced
		}
	}

	for key := range row {
		if _, exists := v.table.Fields[key]; !exists {
			v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in table %s", key, v.table.Name), key)
		}
	}
}

// validateValue checks a single value and returns it, coerced if needed.
func (v *Validator) validateValue(value any, field *FieldDefinition, path string) (any, bool) {
	if value == nil || isStringNull(value) {
		if field.IsRequired() {
			v.addIssue("NULL_VALUE", "Field cannot be null", path)
			return nil, false
		}
		return nil, true
	}

	if coerced, ok := coerceValue(value, field.Type); ok {
		value = coerced
	}
	if !v.checkType(value, field.Type, path) {
		return value, false
	}

	switch field.Type {
	case FieldTypeEnum:
		if len(field.Values) > 0 {
			v.checkEnum(value, field.Values, path)
		}
	case FieldTypeArray, FieldTypeSet:
		v.checkItems(value, field, path)
	}
	return value, true
}

// coerceValue converts string values to the column type where possible.
func coerceValue(value any, expected FieldType) (any, bool) {
	str, ok := value.(string)
	if !ok {
		return value, false
	}

	switch expected {
	case FieldTypeBoolean:
		switch strings.ToLower(str) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	case FieldTypeInteger:
		if intVal, err := strconv.ParseInt(str, 10, 64); err == nil {
			return intVal, true
		}
	case FieldTypeNumber, FieldTypeDecimal:
		if floatVal, err := strconv.ParseFloat(str, 64); err == nil {
			return floatVal, true
		}
	}
	return value, false
}

func isStringNull(value any) bool {
	if str, ok := value.(string); ok {
		return strings.ToLower(str) == "null"
	}
	return false
}

func (v *Validator) checkType(value any, expected FieldType, path string) bool {
	var ok bool
	switch expected {
	case FieldTypeString, FieldTypeEnum:
		_, ok = value.(string)
		if !ok && expected == FieldTypeEnum {
			ok = isNumeric(value)
		}
	case FieldTypeNumber, FieldTypeDecimal:
		ok = isNumeric(value)
	case FieldTypeInteger:
		ok = isInteger(value)
	case FieldTypeBoolean:
		_, ok = value.(bool)
	case FieldTypeArray, FieldTypeSet:
		ok = isArray(value)
	case FieldTypeObject, FieldTypeRecord:
		ok = isObject(value)
	default:
		ok = true
	}
	if !ok {
		v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected %s, got %T", expected, value), path)
	}
	return ok
}

func (v *Validator) checkEnum(value any, allowed []any, path string) {
	for _, candidate := range allowed {
		if reflect.DeepEqual(value, candidate) || fmt.Sprint(value) == fmt.Sprint(candidate) {
			return
		}
	}
	v.addIssue("ENUM_VIOLATION", fmt.Sprintf("Value must be one of: %v", allowed), path)
}

func (v *Validator) checkItems(value any, field *FieldDefinition, path string) {
	rv := reflect.ValueOf(value)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	if field.ItemsType != nil {
		item := &FieldDefinition{Type: *field.ItemsType}
		for i, it := range items {
			if it == nil {
				continue
			}
			v.checkType(it, item.Type, fmt.Sprintf("%s[%d]", path, i))
		}
	}

	if field.Type == FieldTypeSet {
		seen := make(map[string]bool, len(items))
		for i, it := range items {
			key := fmt.Sprintf("%v", it)
			if seen[key] {
				v.addIssue("SET_DUPLICATE", fmt.Sprintf("Duplicate value found in set at index %d", i), path)
			}
			seen[key] = true
		}
	}
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// isInteger accepts integral floats, which is how JSON numbers decode.
func isInteger(value any) bool {
	switch n := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	}
	return false
}

func isArray(value any) bool {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	return rv.Type().Elem().Kind() != reflect.Uint8
}

func isObject(value any) bool {
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: "error",
	})
}
