package query

import (
	"encoding/json"
	"fmt"

	"github.com/iancoleman/orderedmap"
)

// DecodeProps parses a JSON descriptor. Object key order is kept, so filters
// and sort entries compile in the order they were written:
//
//	{
//	  "table": "tasks",
//	  "select": ["id", "name", "user_id.onboarded"],
//	  "where": {"id": {"gte": 0, "lte": 3}, "done": {"not": {"is": true}}},
//	  "sort": {"created_at": "desc"},
//	  "page": 1, "limit": 10, "count": "exact",
//	  "single": false, "camelCase": true, "join": "inner"
//	}
//
// "select" may also be a string, which is passed through unchanged ("*" is the
// wildcard).
func DecodeProps(data []byte) (Props, error) {
	root := orderedmap.New()
	if err := json.Unmarshal(data, root); err != nil {
		return Props{}, fmt.Errorf("failed to parse descriptor: %w", err)
	}

	var props Props
	for _, key := range root.Keys() {
		value, _ := root.Get(key)
		var err error
		switch key {
		case "table":
			props.Table, err = asString(key, value)
		case "select":
			props.Select, err = decodeSelection(value)
		case "where":
			props.Where, err = decodeFilterValue(value)
		case "sort":
			props.Sort, err = decodeSortValue(value)
		case "page":
			props.Page, err = asIntPtr(key, value)
		case "limit":
			props.Limit, err = asIntPtr(key, value)
		case "count":
			var s string
			s, err = asString(key, value)
			props.Count = CountType(s)
		case "single":
			props.Single, err = asBool(key, value)
		case "camelCase":
			props.CamelCase, err = asBool(key, value)
		case "join":
			var s string
			s, err = asString(key, value)
			props.Join = JoinType(s)
		default:
			err = fmt.Errorf("unknown descriptor key %q", key)
		}
		if err != nil {
			return Props{}, err
		}
	}
	return props, nil
}

// DecodeFilter parses a JSON filter object of the form
// {"field": {"operator": operand, ...}, ...}.
func DecodeFilter(data []byte) (Filter, error) {
	m := orderedmap.New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse filter: %w", err)
	}
	return decodeFilterValue(*m)
}

// DecodeSort parses a JSON sort object of the form {"field": "asc"|"desc"}.
func DecodeSort(data []byte) ([]SortConfiguration, error) {
	m := orderedmap.New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse sort: %w", err)
	}
	return decodeSortValue(*m)
}

func decodeSelection(v any) (Selection, error) {
	switch sel := v.(type) {
	case nil:
		return All(), nil
	case string:
		if sel == "*" {
			return All(), nil
		}
		return Raw(sel), nil
	case []any:
		cols := make([]string, 0, len(sel))
		for i, c := range sel {
			s, ok := c.(string)
			if !ok {
				return Selection{}, fmt.Errorf("select[%d] must be a string, got %T", i, c)
			}
			cols = append(cols, s)
		}
		return Columns(cols...), nil
	default:
		return Selection{}, fmt.Errorf("select must be a string or a list of strings, got %T", v)
	}
}

func decodeFilterValue(v any) (Filter, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(orderedmap.OrderedMap)
	if !ok {
		return nil, fmt.Errorf("where must be an object, got %T", v)
	}

	filter := make(Filter, 0, len(m.Keys()))
	for _, field := range m.Keys() {
		raw, _ := m.Get(field)
		ops, ok := raw.(orderedmap.OrderedMap)
		if !ok {
			return nil, fmt.Errorf("where.%s must be an object of operators, got %T", field, raw)
		}
		preds, err := decodePredicates("where."+field, ops)
		if err != nil {
			return nil, err
		}
		filter = append(filter, FieldFilter{Field: field, Predicates: preds})
	}
	return filter, nil
}

func decodePredicates(path string, ops orderedmap.OrderedMap) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(ops.Keys()))
	for _, name := range ops.Keys() {
		op := Operator(name)
		if !op.IsValid() {
			return nil, fmt.Errorf("%s: %w: %q", path, ErrUnknownOperator, name)
		}
		operand, _ := ops.Get(name)
		if op.isLogical() {
			inner, ok := operand.(orderedmap.OrderedMap)
			if !ok {
				return nil, fmt.Errorf("%s.%s: %w: expected an object of operators", path, name, ErrInvalidOperand)
			}
			innerPreds, err := decodePredicates(path+"."+name, inner)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Predicate{Operator: op, Value: Conditions(innerPreds)})
			continue
		}
		preds = append(preds, Predicate{Operator: op, Value: plain(operand)})
	}
	return preds, nil
}

func decodeSortValue(v any) ([]SortConfiguration, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(orderedmap.OrderedMap)
	if !ok {
		return nil, fmt.Errorf("sort must be an object, got %T", v)
	}
	sort := make([]SortConfiguration, 0, len(m.Keys()))
	for _, field := range m.Keys() {
		raw, _ := m.Get(field)
		dir, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("sort.%s must be \"asc\" or \"desc\", got %T", field, raw)
		}
		sort = append(sort, SortConfiguration{Field: field, Direction: SortDirection(dir)})
	}
	return sort, nil
}

// plain converts decoded ordered maps back into map[string]any.
func plain(v any) any {
	switch val := v.(type) {
	case orderedmap.OrderedMap:
		out := make(map[string]any, len(val.Keys()))
		for _, k := range val.Keys() {
			inner, _ := val.Get(k)
			out[k] = plain(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = plain(inner)
		}
		return out
	default:
		return v
	}
}

func asString(key string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func asBool(key string, v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

func asIntPtr(key string, v any) (*int, error) {
	if v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return nil, fmt.Errorf("%s must be an integer, got %v", key, v)
	}
	return IntPtr(int(f)), nil
}
