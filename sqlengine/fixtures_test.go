package sqlengine

import (
	"context"
	"testing"

	"github.com/asaidimu/go-dataloader/core/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func boolPtr(b bool) *bool { return &b }

func typePtr(t schema.FieldType) *schema.FieldType { return &t }

func accountsTable() *schema.TableDefinition {
	return &schema.TableDefinition{
		Name: "accounts",
		Fields: map[string]*schema.FieldDefinition{
			"id":        {Type: schema.FieldTypeString, Required: boolPtr(true)},
			"name":      {Type: schema.FieldTypeString, Required: boolPtr(true)},
			"onboarded": {Type: schema.FieldTypeBoolean, Default: false},
		},
		Indexes: []schema.IndexDefinition{
			{Fields: []string{"id"}, Type: schema.IndexTypePrimary},
		},
	}
}

func tasksTable() *schema.TableDefinition {
	return &schema.TableDefinition{
		Name: "tasks",
		Fields: map[string]*schema.FieldDefinition{
			"id":          {Type: schema.FieldTypeInteger, Required: boolPtr(true)},
			"title":       {Type: schema.FieldTypeString, Required: boolPtr(true)},
			"status":      {Type: schema.FieldTypeEnum, Values: []any{"open", "in progress", "done"}, Default: "open"},
			"user_id":     {Type: schema.FieldTypeString},
			"reviewer_id": {Type: schema.FieldTypeString},
			"tags":        {Type: schema.FieldTypeArray, ItemsType: typePtr(schema.FieldTypeString)},
			"meta":        {Type: schema.FieldTypeRecord},
			"estimate":    {Type: schema.FieldTypeNumber},
			"deleted_at":  {Type: schema.FieldTypeString},
		},
		Indexes: []schema.IndexDefinition{
			{Fields: []string{"id"}, Type: schema.IndexTypePrimary},
			{Fields: []string{"status"}, Type: schema.IndexTypeNormal},
		},
		Relationships: []schema.Relationship{
			{Column: "user_id", Table: "accounts"},
			{Column: "reviewer_id", Table: "accounts"},
		},
	}
}

// newSQLEngine returns an engine with the fixture tables registered but no
// database behind it, for tests that only render SQL.
func newSQLEngine(t *testing.T, d Dialect) *Engine {
	t.Helper()
	e := &Engine{
		dialect: d,
		logger:  zap.NewNop(),
		options: DefaultOptions(),
		tables:  &registry{tables: make(map[string]*schema.TableDefinition)},
	}
	require.NoError(t, e.Register(tasksTable(), accountsTable()))
	return e
}

// newSeededEngine opens an in-memory SQLite database holding the fixture
// tables and rows.
func newSeededEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()

	e, err := OpenSQLite(ctx, ":memory:", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	require.NoError(t, e.Register(tasksTable(), accountsTable()))
	require.NoError(t, e.CreateTables(ctx))

	_, err = e.Insert(ctx, "accounts",
		map[string]any{"id": "a1", "name": "Ada", "onboarded": true},
		map[string]any{"id": "a2", "name": "Bob", "onboarded": false},
		map[string]any{"id": "a3", "name": "Cy", "onboarded": true},
	)
	require.NoError(t, err)

	_, err = e.Insert(ctx, "tasks",
		map[string]any{"id": 1, "title": "Write docs", "status": "open", "user_id": "a1", "reviewer_id": "a2",
			"tags": []any{"docs", "writing"}, "meta": map[string]any{"priority": "high"}, "estimate": 2.5},
		map[string]any{"id": 2, "title": "fix bug", "status": "in progress", "user_id": "a2",
			"tags": []any{"bug"}, "meta": map[string]any{"priority": "low"}, "estimate": 1.0},
		map[string]any{"id": 3, "title": "Release", "status": "done", "user_id": "a1",
			"tags": []any{}, "deleted_at": "2024-01-01"},
		map[string]any{"id": 4, "title": "triage", "tags": []any{"bug", "triage"}, "estimate": 0.5},
		map[string]any{"id": 5, "title": "Plan Q3", "status": "open", "user_id": "a3",
			"tags": []any{"planning"}, "estimate": 3.0},
	)
	require.NoError(t, err)
	return e
}
