// Package sqlengine runs compiled descriptors against a SQL database through
// database/sql. It serves the same builder interface as the PostgREST
// adapter, so a loader can be pointed at SQLite in tests and examples or at a
// plain Postgres database without a PostgREST server in front of it.
//
// Tables are described with schema.TableDefinition. Related-table selections
// are resolved through the definitions' relationships and executed as joins.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
	"github.com/asaidimu/go-dataloader/utils"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Options configures DDL generation and writes.
type Options struct {
	// IfNotExists adds IF NOT EXISTS to CREATE TABLE.
	IfNotExists bool
	// CreateIndexes creates the indexes declared on a table with it.
	CreateIndexes bool
	// ValidateInserts checks rows against the table definition before
	// inserting them.
	ValidateInserts bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		IfNotExists:     true,
		CreateIndexes:   true,
		ValidateInserts: true,
	}
}

// dbRunner abstracts the methods of *sql.DB and *sql.Tx the engine uses, so
// the same code serves transactional and non-transactional work.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// registry holds the table definitions. It is shared by an engine and the
// transactional engines started from it.
type registry struct {
	mu     sync.RWMutex
	tables map[string]*schema.TableDefinition
	order  []string
}

// Engine executes queries on a database. It implements query.Client.
type Engine struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect
	logger  *zap.Logger
	options *Options
	tables  *registry
}

var _ query.Client = (*Engine)(nil)

// New creates an engine on an open database. A nil logger falls back to a
// no-op logger and nil options to DefaultOptions.
func New(db *sql.DB, dialect Dialect, logger *zap.Logger, options *Options) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if dialect == nil {
		return nil, fmt.Errorf("dialect cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	return &Engine{
		db:      db,
		dialect: dialect,
		logger:  logger,
		options: options,
		tables:  &registry{tables: make(map[string]*schema.TableDefinition)},
	}, nil
}

// OpenSQLite opens a SQLite database. An in-memory database is limited to a
// single connection, since every connection would otherwise see its own
// empty database.
func OpenSQLite(ctx context.Context, dsn string, logger *zap.Logger, options *Options) (*Engine, error) {
	db, err := sql.Open(SQLite().DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return open(ctx, db, SQLite(), logger, options)
}

// OpenPostgres opens a Postgres database through lib/pq.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger, options *Options) (*Engine, error) {
	db, err := sql.Open(Postgres().DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	return open(ctx, db, Postgres(), logger, options)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger, options *Options) (*Engine, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Name(), err)
	}
	return New(db, dialect, logger, options)
}

// Close closes the underlying database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// DB returns the underlying database.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Dialect returns the dialect statements are rendered in.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

func (e *Engine) runner() dbRunner {
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

// Register checks and adds table definitions. Registering a table again
// replaces its definition.
func (e *Engine) Register(defs ...*schema.TableDefinition) error {
	for _, def := range defs {
		if def == nil {
			return fmt.Errorf("table definition cannot be nil")
		}
		if err := def.Check(); err != nil {
			return err
		}
	}

	e.tables.mu.Lock()
	defer e.tables.mu.Unlock()
	for _, def := range defs {
		if _, exists := e.tables.tables[def.Name]; !exists {
			e.tables.order = append(e.tables.order, def.Name)
		}
		e.tables.tables[def.Name] = def
		e.logger.Debug("Registered table", zap.String("table", def.Name), zap.Int("fields", len(def.Fields)))
	}
	return nil
}

// Table returns the definition of a registered table.
func (e *Engine) Table(name string) (*schema.TableDefinition, bool) {
	e.tables.mu.RLock()
	defer e.tables.mu.RUnlock()
	def, ok := e.tables.tables[name]
	return def, ok
}

// Tables returns the registered table names in registration order.
func (e *Engine) Tables() []string {
	e.tables.mu.RLock()
	defer e.tables.mu.RUnlock()
	return append([]string(nil), e.tables.order...)
}

// From starts a query on a registered table.
func (e *Engine) From(table string) query.TableRef {
	return tableRef{engine: e, table: table}
}

type tableRef struct {
	engine *Engine
	table  string
}

func (t tableRef) Select(columns string, count query.CountType) query.Handle {
	return &Handle{engine: t.engine, table: t.table, columns: columns, count: count}
}

// project resolves a select string on table.
func (e *Engine) project(table, columns string) (*projection, error) {
	def, ok := e.Table(table)
	if !ok {
		return nil, fmt.Errorf("relation %s does not exist", table)
	}
	items, err := parseSelect(columns)
	if err != nil {
		return nil, err
	}
	return resolveSelect(def, items, e.Table)
}

// Begin starts a transaction and returns an engine scoped to it.
func (e *Engine) Begin(ctx context.Context) (*Engine, error) {
	if e.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional engine")
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	e.logger.Debug("Transaction initiated")
	txEngine := *e
	txEngine.tx = tx
	return &txEngine, nil
}

// Commit commits the engine's transaction.
func (e *Engine) Commit() error {
	if e.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	e.logger.Debug("Committing transaction")
	return e.tx.Commit()
}

// Rollback rolls back the engine's transaction.
func (e *Engine) Rollback() error {
	if e.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	e.logger.Debug("Rolling back transaction")
	return e.tx.Rollback()
}

// Insert validates and inserts rows into table and returns them as stored.
// Outside a transaction the rows are inserted in one.
func (e *Engine) Insert(ctx context.Context, table string, rows ...map[string]any) ([]schema.Document, error) {
	if len(rows) == 0 {
		return []schema.Document{}, nil
	}
	def, ok := e.Table(table)
	if !ok {
		return nil, fmt.Errorf("relation %s does not exist", table)
	}

	if e.options.ValidateInserts {
		validator := schema.NewValidator(def)
		for i, row := range rows {
			if valid, issues := validator.Validate(row, false); !valid {
				return nil, &ValidationError{Table: table, Row: i, Issues: issues}
			}
		}
	}

	if e.tx != nil {
		return e.insert(ctx, def, rows)
	}

	txEngine, err := e.Begin(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := txEngine.insert(ctx, def, rows)
	if err != nil {
		if rbErr := txEngine.Rollback(); rbErr != nil {
			e.logger.Error("Failed to roll back insert", zap.Error(rbErr))
		}
		return nil, err
	}
	if err := txEngine.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insert into %s: %w", table, err)
	}
	return docs, nil
}

// InsertRecords inserts structs, mapping their json tags to columns, the same
// way Insert inserts rows.
func InsertRecords[T any](ctx context.Context, e *Engine, table string, records ...T) ([]schema.Document, error) {
	rows := make([]map[string]any, len(records))
	for i, record := range records {
		row, err := utils.StructToMap(record)
		if err != nil {
			return nil, fmt.Errorf("record %d for %s: %w", i, table, err)
		}
		rows[i] = row
	}
	return e.Insert(ctx, table, rows...)
}

func (e *Engine) insert(ctx context.Context, def *schema.TableDefinition, rows []map[string]any) ([]schema.Document, error) {
	st := newStatement(e.dialect)
	sqlText, err := insertSQL(st, def, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to generate INSERT SQL: %w", err)
	}

	e.logger.Debug("Executing SQL INSERT", zap.String("sql", sqlText), zap.Int("rows", len(rows)))

	result, err := e.runner().QueryContext(ctx, sqlText, st.args...)
	if err != nil {
		e.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("sql", sqlText))
		return nil, fmt.Errorf("failed to insert into %s: %w", def.Name, err)
	}
	defer result.Close()

	all, err := resolveSelect(def, []selectItem{{name: "*"}}, e.Table)
	if err != nil {
		return nil, err
	}
	found, err := readRows(e.dialect, all, result)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(found))
	for i, m := range found {
		docs[i] = schema.Document(m)
	}
	return docs, nil
}

// ValidationError is returned by Insert for a row that does not match its
// table definition.
type ValidationError struct {
	Table  string
	Row    int
	Issues []schema.Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = fmt.Sprintf("%s: %s", issue.Path, issue.Message)
	}
	return fmt.Sprintf("row %d is not a valid %s: %s", e.Row, e.Table, strings.Join(msgs, "; "))
}

// readRows scans rows laid out by p and nests embedded columns under their
// embed name. A left embed without a matching row becomes nil.
func readRows(d Dialect, p *projection, rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	if len(columns) != len(p.outputs) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(p.outputs), len(columns))
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		nested := make(map[*embed]map[string]any, len(p.embeds))
		present := make(map[*embed]bool, len(p.embeds))
		for i, out := range p.outputs {
			if out.key {
				present[out.embed] = values[i] != nil
				continue
			}
			value := d.DecodeValue(out.field, values[i])
			if out.embed == nil {
				row[out.field.Name] = value
				continue
			}
			obj, ok := nested[out.embed]
			if !ok {
				obj = make(map[string]any)
				nested[out.embed] = obj
			}
			obj[out.field.Name] = value
		}

		for _, e := range p.embeds {
			if !present[e] {
				row[e.name] = nil
				continue
			}
			obj, ok := nested[e]
			if !ok {
				obj = make(map[string]any)
			}
			row[e.name] = obj
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}
