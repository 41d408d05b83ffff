package query

import "github.com/iancoleman/strcase"

// Shape turns an engine response into the caller-facing result.
//
// A single-row result carries the row or nil, never a slice. A list result
// carries a []map[string]any that is empty rather than nil when the engine
// returned nothing. A missing count becomes 0. When camel is set, object keys
// are converted from snake_case to lowerCamelCase at every depth; values are
// left alone.
func Shape(resp Response, single, camel bool) *QueryResult {
	result := &QueryResult{Error: resp.Error}
	if resp.Count != nil {
		result.Count = *resp.Count
	}

	var data any
	if single {
		var err error
		data, err = singleRow(resp.Data)
		if err != nil && result.Error == nil {
			result.Error = err
		}
	} else {
		data = rowList(resp.Data)
	}

	if camel {
		data = CamelizeKeys(data)
	}
	result.Data = data
	return result
}

// singleRow reduces data to one row. An engine that ignored maybe-single
// mode may hand back a list: no rows is nil, one row is that row and more is
// ErrMultipleRows.
func singleRow(data any) (any, error) {
	switch row := data.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if row == nil {
			return nil, nil
		}
		return row, nil
	case []map[string]any:
		switch len(row) {
		case 0:
			return nil, nil
		case 1:
			return row[0], nil
		}
		return nil, ErrMultipleRows
	case []any:
		switch len(row) {
		case 0:
			return nil, nil
		case 1:
			return singleRow(row[0])
		}
		return nil, ErrMultipleRows
	default:
		return data, nil
	}
}

func rowList(data any) any {
	switch rows := data.(type) {
	case nil:
		return []map[string]any{}
	case []map[string]any:
		if rows == nil {
			return []map[string]any{}
		}
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			m, ok := r.(map[string]any)
			if !ok {
				return rows
			}
			out = append(out, m)
		}
		return out
	default:
		return data
	}
}

// CamelizeKeys returns a copy of v with every map key converted to
// lowerCamelCase. Maps nested in maps and slices are converted as well.
func CamelizeKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[strcase.ToLowerCamel(k)] = CamelizeKeys(inner)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, row := range val {
			out[i], _ = CamelizeKeys(row).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = CamelizeKeys(inner)
		}
		return out
	default:
		return v
	}
}
