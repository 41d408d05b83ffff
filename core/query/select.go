package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNestedRelation is returned for a selected column that crosses more than
// one relation, such as "a.b.c".
var ErrNestedRelation = errors.New("only one level of relation is supported")

// ErrEmptyColumn is returned for an empty column name in a selection.
var ErrEmptyColumn = errors.New("column name cannot be empty")

type relationGroup struct {
	table   string
	columns []string
}

// BuildSelect renders a selection in PostgREST's embedding grammar.
//
// Plain columns come first in input order, followed by one group per related
// table in order of first appearance:
//
//	id,name,user_id !inner (onboarded,id)
//
// JoinTypeLeft omits the !inner hint.
func BuildSelect(sel Selection, join JoinType) (string, error) {
	if raw, ok := sel.RawString(); ok {
		return raw, nil
	}
	if sel.IsWildcard() {
		return "*", nil
	}

	var plain []string
	var groups []*relationGroup
	index := make(map[string]*relationGroup)

	for _, field := range sel.columns {
		if field == "" {
			return "", ErrEmptyColumn
		}
		parts := strings.Split(field, ".")
		switch len(parts) {
		case 1:
			plain = append(plain, field)
		case 2:
			table, column := parts[0], parts[1]
			if table == "" || column == "" {
				return "", fmt.Errorf("invalid column %q: %w", field, ErrEmptyColumn)
			}
			group, ok := index[table]
			if !ok {
				group = &relationGroup{table: table}
				index[table] = group
				groups = append(groups, group)
			}
			group.columns = append(group.columns, column)
		default:
			return "", fmt.Errorf("invalid column %q: %w", field, ErrNestedRelation)
		}
	}

	hint := ""
	if join != JoinTypeLeft {
		hint = "!inner "
	}

	parts := append([]string(nil), plain...)
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s %s(%s)", g.table, hint, strings.Join(g.columns, ",")))
	}
	return strings.Join(parts, ","), nil
}
