package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tasksJSON = `{
  "name": "tasks",
  "fields": {
    "id": {"type": "integer", "required": true},
    "title": {"type": "string", "required": true},
    "user_id": {"type": "string"},
    "reviewer_id": {"type": "string"},
    "project": {"type": "integer"}
  },
  "indexes": [{"fields": ["id"], "type": "primary"}],
  "relationships": [
    {"column": "user_id", "table": "accounts"},
    {"column": "reviewer_id", "table": "accounts"},
    {"column": "project", "table": "projects", "references": "key"}
  ]
}`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(tasksJSON))
	require.NoError(t, err)

	assert.Equal(t, "tasks", def.Name)
	assert.Equal(t, "title", def.FindField("title").Name)
	assert.Nil(t, def.FindField("nope"))
	assert.True(t, def.FindField("id").IsRequired())
	assert.False(t, def.FindField("user_id").IsRequired())

	assert.Equal(t, "id", def.Relationships[0].References)
	assert.Equal(t, "key", def.Relationships[2].References)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"missing name", `{"fields": {"id": {"type": "integer"}}}`},
		{"no fields", `{"name": "t"}`},
		{"nil field", `{"name": "t", "fields": {"id": null}}`},
		{"mismatched field name", `{"name": "t", "fields": {"id": {"name": "key", "type": "integer"}}}`},
		{"index on unknown field", `{"name": "t", "fields": {"id": {"type": "integer"}}, "indexes": [{"fields": ["x"], "type": "normal"}]}`},
		{"relationship without table", `{"name": "t", "fields": {"id": {"type": "integer"}}, "relationships": [{"column": "id"}]}`},
		{"relationship on unknown field", `{"name": "t", "fields": {"id": {"type": "integer"}}, "relationships": [{"column": "x", "table": "u"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}

	_, err := Parse([]byte(`{`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidDefinition)
}

func TestColumnNames(t *testing.T) {
	def, err := Parse([]byte(tasksJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "project", "reviewer_id", "title", "user_id"}, def.ColumnNames())
	assert.Equal(t, []string{"id"}, def.PrimaryKey())

	def.Indexes = nil
	assert.Nil(t, def.PrimaryKey())
	assert.Equal(t, []string{"id", "project", "reviewer_id", "title", "user_id"}, def.ColumnNames())
}

func TestRelationship(t *testing.T) {
	def, err := Parse([]byte(tasksJSON))
	require.NoError(t, err)

	rel, ok := def.Relationship("user_id")
	require.True(t, ok)
	assert.Equal(t, "accounts", rel.Table)

	rel, ok = def.Relationship("projects")
	require.True(t, ok)
	assert.Equal(t, "project", rel.Column)

	// Two foreign keys point at accounts.
	_, ok = def.Relationship("accounts")
	assert.False(t, ok)

	_, ok = def.Relationship("teams")
	assert.False(t, ok)
}

func TestFieldType_IsComposite(t *testing.T) {
	assert.True(t, FieldTypeArray.IsComposite())
	assert.True(t, FieldTypeSet.IsComposite())
	assert.True(t, FieldTypeObject.IsComposite())
	assert.True(t, FieldTypeRecord.IsComposite())
	assert.False(t, FieldTypeString.IsComposite())
	assert.False(t, FieldTypeEnum.IsComposite())
}
