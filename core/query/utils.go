package query

import "reflect"

// StringPtr is a helper function that returns a pointer to a string.
func StringPtr(s string) *string {
	return &s
}

// IntPtr is a helper function that returns a pointer to an int.
func IntPtr(i int) *int {
	return &i
}

// BoolPtr is a helper function that returns a pointer to a bool.
func BoolPtr(b bool) *bool {
	return &b
}

// isNil reports whether v is nil or a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// toList converts any slice or array (other than a byte string) into []any.
// The result is never nil when ok is true.
func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return append(make([]any, 0, len(list)), list...), true
	}
	if v == nil {
		return nil, false
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

// toBoolOrNil accepts nil, bool and *bool; a nil *bool is treated as null.
func toBoolOrNil(v any) (any, bool) {
	switch b := v.(type) {
	case nil:
		return nil, true
	case bool:
		return b, true
	case *bool:
		if b == nil {
			return nil, true
		}
		return *b, true
	default:
		return nil, false
	}
}
