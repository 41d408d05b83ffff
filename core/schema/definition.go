// Package schema describes the tables an embedded engine serves: their
// columns, indexes and the foreign keys that related-table selections are
// resolved through.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// FieldType represents the column types supported by the schema system.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Floating point data
	FieldTypeInteger FieldType = "integer" // Whole numbers
	FieldTypeDecimal FieldType = "decimal" // Numeric data
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeSet     FieldType = "set"     // Unordered list with unique items
	FieldTypeEnum    FieldType = "enum"    // One out of a set of pre-defined items
	FieldTypeObject  FieldType = "object"  // Structured data
	FieldTypeRecord  FieldType = "record"  // Unorganized key-value object, resolves to map[string]any
)

// IsComposite reports whether values of this type are stored as JSON documents.
func (t FieldType) IsComposite() bool {
	switch t {
	case FieldTypeArray, FieldTypeSet, FieldTypeObject, FieldTypeRecord:
		return true
	}
	return false
}

// IndexType represents index types.
type IndexType string

const (
	IndexTypeNormal  IndexType = "normal"  // General-purpose index
	IndexTypeUnique  IndexType = "unique"  // Unique index
	IndexTypePrimary IndexType = "primary" // Primary key index (implies unique)
)

// FieldDefinition defines a column.
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Required marks the column NOT NULL.
	Required *bool `json:"required,omitempty"`
	// Default is used when an inserted row omits the column.
	Default any `json:"default,omitempty"`
	// Values lists the allowed values of an enum column.
	Values []any `json:"values,omitempty"`
	// ItemsType is the element type of array and set columns.
	ItemsType   *FieldType `json:"itemsType,omitempty"`
	Description *string    `json:"description,omitempty"`
	Unique      *bool      `json:"unique,omitempty"`
}

// IsRequired reports whether the column is NOT NULL.
func (f *FieldDefinition) IsRequired() bool {
	return f.Required != nil && *f.Required
}

// IndexDefinition defines an index for optimizing queries or enforcing uniqueness.
type IndexDefinition struct {
	Fields      []string  `json:"fields"`
	Type        IndexType `json:"type"`
	Unique      *bool     `json:"unique,omitempty"`
	Description *string   `json:"description,omitempty"`
	Order       *string   `json:"order,omitempty"` // "asc" | "desc"
	Name        string    `json:"name"`
}

// Relationship is a foreign key from Column on the owning table to
// References on Table. A selection embeds the related row either by the
// foreign key column ("user_id(name)") or by the referenced table
// ("accounts(name)").
type Relationship struct {
	Column     string `json:"column"`
	Table      string `json:"table"`
	References string `json:"references,omitempty"` // defaults to "id"
}

// TableDefinition defines a table.
type TableDefinition struct {
	Name          string                      `json:"name"`
	Version       string                      `json:"version,omitempty"`
	Description   *string                     `json:"description,omitempty"`
	Fields        map[string]*FieldDefinition `json:"fields"`
	Indexes       []IndexDefinition           `json:"indexes,omitempty"`
	Relationships []Relationship              `json:"relationships,omitempty"`
}

// ErrInvalidDefinition is returned for a table definition that cannot be served.
var ErrInvalidDefinition = errors.New("invalid table definition")

// Parse decodes a JSON table definition and checks it.
func Parse(data []byte) (*TableDefinition, error) {
	var def TableDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode table definition: %w", err)
	}
	if err := def.Check(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Check verifies that the definition is usable and fills in defaults: field
// names from their map keys and "id" for relationships without References.
func (t *TableDefinition) Check() error {
	if t.Name == "" {
		return fmt.Errorf("table name cannot be empty: %w", ErrInvalidDefinition)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("table %s has no fields: %w", t.Name, ErrInvalidDefinition)
	}
	for name, field := range t.Fields {
		if field == nil {
			return fmt.Errorf("field %s.%s is nil: %w", t.Name, name, ErrInvalidDefinition)
		}
		if field.Name == "" {
			field.Name = name
		}
		if field.Name != name {
			return fmt.Errorf("field %s.%s is declared as %q: %w", t.Name, name, field.Name, ErrInvalidDefinition)
		}
	}
	for _, index := range t.Indexes {
		for _, f := range index.Fields {
			if _, ok := t.Fields[f]; !ok {
				return fmt.Errorf("index on %s references unknown field %s: %w", t.Name, f, ErrInvalidDefinition)
			}
		}
	}
	for i := range t.Relationships {
		rel := &t.Relationships[i]
		if rel.Table == "" {
			return fmt.Errorf("relationship on %s.%s has no table: %w", t.Name, rel.Column, ErrInvalidDefinition)
		}
		if _, ok := t.Fields[rel.Column]; !ok {
			return fmt.Errorf("relationship on %s references unknown field %s: %w", t.Name, rel.Column, ErrInvalidDefinition)
		}
		if rel.References == "" {
			rel.References = "id"
		}
	}
	return nil
}

// FindField returns the definition of a column, or nil.
func (t *TableDefinition) FindField(name string) *FieldDefinition {
	return t.Fields[name]
}

// ColumnNames returns the column names in a stable order: primary key columns
// first, then the rest alphabetically.
func (t *TableDefinition) ColumnNames() []string {
	pk := t.PrimaryKey()
	seen := make(map[string]bool, len(pk))
	names := make([]string, 0, len(t.Fields))
	for _, name := range pk {
		seen[name] = true
		names = append(names, name)
	}
	rest := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// PrimaryKey returns the columns of the primary index, if any.
func (t *TableDefinition) PrimaryKey() []string {
	for _, index := range t.Indexes {
		if index.Type == IndexTypePrimary && len(index.Fields) > 0 {
			return index.Fields
		}
	}
	return nil
}

// Relationship finds the foreign key an embed name refers to, matching the
// foreign key column first and the referenced table second.
func (t *TableDefinition) Relationship(embed string) (*Relationship, bool) {
	for i := range t.Relationships {
		if t.Relationships[i].Column == embed {
			return &t.Relationships[i], true
		}
	}
	var found *Relationship
	for i := range t.Relationships {
		if t.Relationships[i].Table == embed {
			if found != nil {
				// Ambiguous: two foreign keys point at the same table.
				return nil, false
			}
			found = &t.Relationships[i]
		}
	}
	return found, found != nil
}

// Issue represents a validation issue.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"` // e.g., "error", "warning"
}

// Document is a single row.
type Document map[string]any
