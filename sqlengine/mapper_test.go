package sqlengine

import (
	"testing"

	"github.com/asaidimu/go-dataloader/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableSQL_SQLite(t *testing.T) {
	e := newSQLEngine(t, SQLite())
	def, _ := e.Table("tasks")

	stmt, err := e.CreateTableSQL(def)
	require.NoError(t, err)

	expected := `CREATE TABLE IF NOT EXISTS "tasks" (
    "id" INTEGER NOT NULL,
    "deleted_at" TEXT,
    "estimate" REAL,
    "meta" TEXT,
    "reviewer_id" TEXT,
    "status" TEXT DEFAULT 'open' CHECK("status" IN ('open', 'in progress', 'done')),
    "tags" TEXT,
    "title" TEXT NOT NULL,
    "user_id" TEXT,
    PRIMARY KEY ("id"),
    FOREIGN KEY ("user_id") REFERENCES "accounts" ("id"),
    FOREIGN KEY ("reviewer_id") REFERENCES "accounts" ("id")
);`
	assert.Equal(t, expected, stmt)
}

func TestCreateTableSQL_Postgres(t *testing.T) {
	e := newSQLEngine(t, Postgres())
	e.options.IfNotExists = false

	def := &schema.TableDefinition{
		Name: "events",
		Fields: map[string]*schema.FieldDefinition{
			"id":      {Type: schema.FieldTypeInteger, Required: boolPtr(true)},
			"active":  {Type: schema.FieldTypeBoolean, Default: true},
			"labels":  {Type: schema.FieldTypeSet, ItemsType: typePtr(schema.FieldTypeString), Default: []any{"new"}},
			"payload": {Type: schema.FieldTypeObject, Default: map[string]any{"v": 1}},
			"score":   {Type: schema.FieldTypeDecimal, Unique: boolPtr(true)},
		},
	}
	require.NoError(t, def.Check())

	stmt, err := e.CreateTableSQL(def)
	require.NoError(t, err)

	expected := `CREATE TABLE "events" (
    "active" BOOLEAN DEFAULT TRUE,
    "id" BIGINT NOT NULL,
    "labels" TEXT[] DEFAULT '{"new"}',
    "payload" JSONB DEFAULT '{"v":1}'::jsonb,
    "score" NUMERIC UNIQUE
);`
	assert.Equal(t, expected, stmt)
}

func TestCreateIndexSQL(t *testing.T) {
	e := newSQLEngine(t, SQLite())
	def, _ := e.Table("tasks")
	desc := "desc"

	tests := []struct {
		name     string
		index    schema.IndexDefinition
		expected string
	}{
		{"primary", schema.IndexDefinition{Fields: []string{"id"}, Type: schema.IndexTypePrimary}, ""},
		{
			"normal",
			schema.IndexDefinition{Fields: []string{"status"}, Type: schema.IndexTypeNormal},
			`CREATE INDEX IF NOT EXISTS "idx_tasks_status" ON "tasks" ("status");`,
		},
		{
			"unique named descending",
			schema.IndexDefinition{Name: "by_title", Fields: []string{"title", "user_id"}, Type: schema.IndexTypeUnique, Order: &desc},
			`CREATE UNIQUE INDEX IF NOT EXISTS "by_title" ON "tasks" ("title" DESC, "user_id" DESC);`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := e.CreateIndexSQL(def, tt.index)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stmt)
		})
	}

	_, err := e.CreateIndexSQL(def, schema.IndexDefinition{Type: schema.IndexTypeNormal})
	assert.Error(t, err)
}

func TestCreationOrder(t *testing.T) {
	e := newSQLEngine(t, SQLite())
	// tasks was registered before accounts but references it.
	assert.Equal(t, []string{"tasks", "accounts"}, e.Tables())
	assert.Equal(t, []string{"accounts", "tasks"}, e.creationOrder())

	require.NoError(t, e.Register(
		&schema.TableDefinition{
			Name:          "a",
			Fields:        map[string]*schema.FieldDefinition{"id": {Type: schema.FieldTypeInteger}, "b_id": {Type: schema.FieldTypeInteger}},
			Relationships: []schema.Relationship{{Column: "b_id", Table: "b"}},
		},
		&schema.TableDefinition{
			Name:          "b",
			Fields:        map[string]*schema.FieldDefinition{"id": {Type: schema.FieldTypeInteger}, "a_id": {Type: schema.FieldTypeInteger}},
			Relationships: []schema.Relationship{{Column: "a_id", Table: "a"}},
		},
	))
	assert.Equal(t, []string{"accounts", "tasks", "a", "b"}, e.creationOrder())
}
