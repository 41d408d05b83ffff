package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-dataloader/core/schema"
	"go.uber.org/zap"
)

// CreateTables creates every registered table, referenced tables first, along
// with their indexes when Options.CreateIndexes is set. All statements run in
// one transaction.
func (e *Engine) CreateTables(ctx context.Context) error {
	names := e.creationOrder()

	run := func(target *Engine) error {
		for _, name := range names {
			if err := target.createTable(ctx, name); err != nil {
				return err
			}
		}
		return nil
	}

	if e.tx != nil {
		return run(e)
	}
	txEngine, err := e.Begin(ctx)
	if err != nil {
		return err
	}
	if err := run(txEngine); err != nil {
		if rbErr := txEngine.Rollback(); rbErr != nil {
			e.logger.Error("Failed to roll back table creation", zap.Error(rbErr))
		}
		return err
	}
	return txEngine.Commit()
}

// creationOrder sorts the registered tables so that a table comes after the
// tables its relationships reference. Cycles fall back to registration order.
func (e *Engine) creationOrder() []string {
	names := e.Tables()
	created := make(map[string]bool, len(names))
	ordered := make([]string, 0, len(names))

	for len(ordered) < len(names) {
		progress := false
		for _, name := range names {
			if created[name] {
				continue
			}
			def, _ := e.Table(name)
			ready := true
			for _, rel := range def.Relationships {
				if _, registered := e.Table(rel.Table); registered && rel.Table != name && !created[rel.Table] {
					ready = false
					break
				}
			}
			if ready {
				created[name] = true
				ordered = append(ordered, name)
				progress = true
			}
		}
		if !progress {
			for _, name := range names {
				if !created[name] {
					created[name] = true
					ordered = append(ordered, name)
				}
			}
		}
	}
	return ordered
}

func (e *Engine) createTable(ctx context.Context, name string) error {
	def, ok := e.Table(name)
	if !ok {
		return fmt.Errorf("relation %s does not exist", name)
	}

	stmt, err := e.CreateTableSQL(def)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", def.Name, err)
	}
	e.logger.Debug("Creating table", zap.String("table", def.Name), zap.String("sql", stmt))
	if _, err := e.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
	}

	if !e.options.CreateIndexes {
		return nil
	}
	for _, index := range def.Indexes {
		stmt, err := e.CreateIndexSQL(def, index)
		if err != nil {
			return fmt.Errorf("failed to generate SQL for index %s: %w", index.Name, err)
		}
		if stmt == "" {
			continue
		}
		if _, err := e.runner().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", index.Name, err)
		}
	}
	return nil
}

// CreateTableSQL generates the CREATE TABLE statement for a definition,
// including column constraints, the primary key and foreign keys.
func (e *Engine) CreateTableSQL(def *schema.TableDefinition) (string, error) {
	d := e.dialect

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if e.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(d.QuoteIdentifier(def.Name) + " (\n")

	var parts []string
	for _, name := range def.ColumnNames() {
		columnDef, err := e.buildColumnDefinition(def.Fields[name])
		if err != nil {
			return "", fmt.Errorf("error on field '%s': %w", name, err)
		}
		parts = append(parts, "    "+columnDef)
	}

	if pk := def.PrimaryKey(); len(pk) > 0 {
		quoted := make([]string, len(pk))
		for i, col := range pk {
			quoted[i] = d.QuoteIdentifier(col)
		}
		parts = append(parts, "    PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	for _, rel := range def.Relationships {
		parts = append(parts, fmt.Sprintf("    FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.QuoteIdentifier(rel.Column), d.QuoteIdentifier(rel.Table), d.QuoteIdentifier(rel.References)))
	}

	sb.WriteString(strings.Join(parts, ",\n"))
	sb.WriteString("\n);")
	return sb.String(), nil
}

// buildColumnDefinition renders a single column: name, type and constraints.
func (e *Engine) buildColumnDefinition(field *schema.FieldDefinition) (string, error) {
	d := e.dialect
	parts := []string{d.QuoteIdentifier(field.Name), d.ColumnType(field)}

	if field.IsRequired() {
		parts = append(parts, "NOT NULL")
	}
	if field.Default != nil {
		value, err := d.FormatDefault(field, field.Default)
		if err != nil {
			return "", err
		}
		parts = append(parts, "DEFAULT "+value)
	}
	if field.Unique != nil && *field.Unique {
		parts = append(parts, "UNIQUE")
	}
	if field.Type == schema.FieldTypeEnum && len(field.Values) > 0 {
		text := &schema.FieldDefinition{Name: field.Name, Type: schema.FieldTypeString}
		values := make([]string, 0, len(field.Values))
		for _, v := range field.Values {
			literal, err := d.FormatDefault(text, v)
			if err != nil {
				return "", err
			}
			values = append(values, literal)
		}
		parts = append(parts, fmt.Sprintf("CHECK(%s IN (%s))", d.QuoteIdentifier(field.Name), strings.Join(values, ", ")))
	}
	return strings.Join(parts, " "), nil
}

// CreateIndexSQL generates the CREATE INDEX statement for an index. The
// primary index is part of the table and yields an empty statement.
func (e *Engine) CreateIndexSQL(def *schema.TableDefinition, index schema.IndexDefinition) (string, error) {
	if index.Type == schema.IndexTypePrimary {
		return "", nil
	}
	if len(index.Fields) == 0 {
		return "", fmt.Errorf("index on %s has no fields", def.Name)
	}
	d := e.dialect

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if (index.Unique != nil && *index.Unique) || index.Type == schema.IndexTypeUnique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX IF NOT EXISTS ")

	name := index.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", def.Name, strings.Join(index.Fields, "_"))
	}
	sb.WriteString(d.QuoteIdentifier(name))
	sb.WriteString(" ON " + d.QuoteIdentifier(def.Name) + " (")

	columns := make([]string, len(index.Fields))
	for i, field := range index.Fields {
		columns[i] = d.QuoteIdentifier(field)
		if index.Order != nil && strings.EqualFold(*index.Order, "desc") {
			columns[i] += " DESC"
		}
	}
	sb.WriteString(strings.Join(columns, ", ") + ");")
	return sb.String(), nil
}

// DropTable drops a table if it exists.
func (e *Engine) DropTable(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s;", e.dialect.QuoteIdentifier(name))
	if _, err := e.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// TableExists reports whether a table exists in the database.
func (e *Engine) TableExists(ctx context.Context, name string) (bool, error) {
	var found string
	err := e.runner().QueryRowContext(ctx, e.dialect.TableExistsSQL(), name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
