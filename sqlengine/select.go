package sqlengine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
)

var (
	// ErrInvalidSelect is returned for a select string the engine cannot parse.
	ErrInvalidSelect = errors.New("invalid select string")
	// ErrUnknownColumn is returned for a column that is not part of a table.
	ErrUnknownColumn = errors.New("column does not exist")
	// ErrUnknownRelationship is returned for an embed no foreign key matches.
	ErrUnknownRelationship = errors.New("could not find a relationship")
)

// selectItem is one entry of a parsed select string: a column, "*", or an
// embedded table with its own columns.
type selectItem struct {
	name     string
	hint     string
	embedded bool
	children []selectItem
}

// parseSelect parses the subset of PostgREST's select grammar the engine
// serves: columns, "*", and one level of embedding with an optional !inner
// or !left hint. Whitespace is ignored.
func parseSelect(raw string) ([]selectItem, error) {
	src := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if src == "" {
		src = "*"
	}

	p := &selectParser{src: src}
	items, err := p.list(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected %q at offset %d in %q: %w", p.src[p.pos], p.pos, raw, ErrInvalidSelect)
	}
	return items, nil
}

type selectParser struct {
	src string
	pos int
}

func (p *selectParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *selectParser) list(depth int) ([]selectItem, error) {
	var items []selectItem
	for {
		item, err := p.item(depth)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek() != ',' {
			return items, nil
		}
		p.pos++
	}
}

func (p *selectParser) token() string {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(",()!", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *selectParser) item(depth int) (selectItem, error) {
	name := p.token()
	if name == "" {
		return selectItem{}, fmt.Errorf("at offset %d: %w", p.pos, query.ErrEmptyColumn)
	}
	if strings.ContainsAny(name, ":.") {
		return selectItem{}, fmt.Errorf("aliases, casts and json paths are not supported (%q): %w", name, ErrInvalidSelect)
	}

	item := selectItem{name: name}
	if p.peek() == '!' {
		p.pos++
		item.hint = p.token()
	}

	if p.peek() != '(' {
		if item.hint != "" {
			return selectItem{}, fmt.Errorf("hint !%s on plain column %s: %w", item.hint, name, ErrInvalidSelect)
		}
		return item, nil
	}

	if depth > 0 {
		return selectItem{}, fmt.Errorf("embedding %s inside another embed: %w", name, query.ErrNestedRelation)
	}
	switch item.hint {
	case "", "inner", "left":
	default:
		return selectItem{}, fmt.Errorf("unsupported hint !%s on %s: %w", item.hint, name, ErrInvalidSelect)
	}

	p.pos++
	children, err := p.list(depth + 1)
	if err != nil {
		return selectItem{}, err
	}
	if p.peek() != ')' {
		return selectItem{}, fmt.Errorf("missing ')' after %s: %w", name, ErrInvalidSelect)
	}
	p.pos++

	item.embedded = true
	item.children = children
	return item, nil
}

// embed is a related table joined into the query under an alias.
type embed struct {
	name  string
	rel   *schema.Relationship
	table *schema.TableDefinition
	inner bool
}

// output is one projected column, in select order.
type output struct {
	embed *embed
	field *schema.FieldDefinition
	// key marks the hidden join key used to tell a missing left embed from
	// one whose selected columns are all null.
	key bool
}

// projection is a select string resolved against the table definitions.
type projection struct {
	table   *schema.TableDefinition
	outputs []output
	embeds  []*embed
	byName  map[string]*embed
}

// resolveSelect resolves items against base, looking related tables up
// through lookup.
func resolveSelect(base *schema.TableDefinition, items []selectItem, lookup func(string) (*schema.TableDefinition, bool)) (*projection, error) {
	p := &projection{table: base, byName: make(map[string]*embed)}

	for _, item := range items {
		if !item.embedded {
			if err := p.addColumns(nil, base, item.name); err != nil {
				return nil, err
			}
			continue
		}

		if _, dup := p.byName[item.name]; dup {
			return nil, fmt.Errorf("%s is embedded twice: %w", item.name, ErrInvalidSelect)
		}
		if item.name == base.Name {
			return nil, fmt.Errorf("embed %s shadows the table it is selected from: %w", item.name, ErrInvalidSelect)
		}
		rel, ok := base.Relationship(item.name)
		if !ok {
			return nil, fmt.Errorf("between %s and %s: %w", base.Name, item.name, ErrUnknownRelationship)
		}
		related, ok := lookup(rel.Table)
		if !ok {
			return nil, fmt.Errorf("table %s referenced by %s.%s is not registered: %w", rel.Table, base.Name, rel.Column, ErrUnknownRelationship)
		}
		keyField := related.FindField(rel.References)
		if keyField == nil {
			return nil, fmt.Errorf("%s.%s: %w", related.Name, rel.References, ErrUnknownColumn)
		}

		e := &embed{name: item.name, rel: rel, table: related, inner: item.hint == "inner"}
		p.embeds = append(p.embeds, e)
		p.byName[e.name] = e
		p.outputs = append(p.outputs, output{embed: e, field: keyField, key: true})

		for _, child := range item.children {
			if err := p.addColumns(e, related, child.name); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *projection) addColumns(e *embed, table *schema.TableDefinition, name string) error {
	if name == "*" {
		for _, col := range table.ColumnNames() {
			p.outputs = append(p.outputs, output{embed: e, field: table.Fields[col]})
		}
		return nil
	}
	field := table.FindField(name)
	if field == nil {
		return fmt.Errorf("%s.%s: %w", table.Name, name, ErrUnknownColumn)
	}
	p.outputs = append(p.outputs, output{embed: e, field: field})
	return nil
}

// column resolves a filter or order column: "name" on the base table or
// "embed.name" on an embedded one.
func (p *projection) column(d Dialect, name string) (string, *schema.FieldDefinition, *embed, error) {
	table, column, nested := strings.Cut(name, ".")
	if !nested {
		field := p.table.FindField(name)
		if field == nil {
			return "", nil, nil, fmt.Errorf("%s.%s: %w", p.table.Name, name, ErrUnknownColumn)
		}
		return d.QuoteIdentifier(p.table.Name) + "." + d.QuoteIdentifier(name), field, nil, nil
	}

	e, ok := p.byName[table]
	if !ok {
		return "", nil, nil, fmt.Errorf("%s is not embedded in the selection of %s: %w", table, p.table.Name, ErrUnknownRelationship)
	}
	field := e.table.FindField(column)
	if field == nil {
		return "", nil, nil, fmt.Errorf("%s.%s: %w", e.table.Name, column, ErrUnknownColumn)
	}
	return d.QuoteIdentifier(e.name) + "." + d.QuoteIdentifier(column), field, e, nil
}

// alias is the result column name of an output.
func (o output) alias() string {
	if o.embed == nil {
		return o.field.Name
	}
	if o.key {
		return o.embed.name + ".#key"
	}
	return o.embed.name + "." + o.field.Name
}
