// Package utils converts between loosely typed rows (map[string]any) and Go
// structs using their json tags.
package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StructToMap converts a struct, or a pointer to one, into a row. Nested
// structs become nested maps, matching the shape an engine returns for an
// embedded relation.
//
//	type Task struct {
//		ID   int    `json:"id"`
//		Name string `json:"name"`
//	}
//	row, err := StructToMap(Task{ID: 1, Name: "write docs"})
//	// row == map[string]any{"id": float64(1), "name": "write docs"}
func StructToMap[T any](record T) (map[string]any, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	jsonBytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("StructToMap: failed to marshal input record to JSON: %w", err)
	}

	var row map[string]any
	if err := json.Unmarshal(jsonBytes, &row); err != nil {
		return nil, fmt.Errorf("StructToMap: failed to unmarshal JSON to map: %w", err)
	}
	return row, nil
}

// Decode converts loaded data into T. A single row decodes into a struct (or
// pointer to one); a list of rows decodes into a slice.
//
//	tasks, err := Decode[[]Task](result.Data)
func Decode[T any](data any) (T, error) {
	var zero T
	if data == nil {
		return zero, fmt.Errorf("Decode: input data cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("Decode: target type cannot be an interface")
	}
	base := typ
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
	default:
		return zero, fmt.Errorf("Decode: target type must be a struct, map or slice, got %s", base.Kind())
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return zero, fmt.Errorf("Decode: failed to marshal input to JSON: %w", err)
	}

	var result T
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return zero, fmt.Errorf("Decode: failed to unmarshal JSON to %s: %w", typ, err)
	}
	return result, nil
}
