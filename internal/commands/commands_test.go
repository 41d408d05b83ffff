package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
	"github.com/asaidimu/go-dataloader/sqlengine"
	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsJSON = `[{
  "name": "accounts",
  "fields": {
    "id": {"type": "string", "required": true},
    "name": {"type": "string", "required": true}
  },
  "indexes": [{"fields": ["id"], "type": "primary"}]
}]`

// workspace returns a directory with no configuration in it and an
// environment that cannot leak settings into the command.
func workspace(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	homedir.DisableCache = true
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{
		"DATALOADER_LOADER_COUNT", "DATALOADER_LOADER_JOIN", "DATALOADER_LOADER_PAGE_SIZE",
		"DATALOADER_LOADER_SKIP_VALIDATION", "DATALOADER_LOADER_STRICT", "DATALOADER_QUEUE_URL", "DATALOADER_QUEUE_TOKEN",
		"DATALOADER_QUEUE_BASE_URL", "QSTASH_QUEUE_URL", "QSTASH_TOKEN",
	} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	return t.TempDir()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseSelection(t *testing.T) {
	assert.True(t, parseSelection("").IsWildcard())
	assert.True(t, parseSelection(" * ").IsWildcard())
	assert.Equal(t, []string{"id", "user_id.name"}, parseSelection("id, user_id.name,").Fields())

	raw, ok := parseSelection("id,user_id!inner(name)").RawString()
	assert.True(t, ok)
	assert.Equal(t, "id,user_id!inner(name)", raw)
}

func TestParseSort(t *testing.T) {
	sort, err := parseSort("name, created_at:DESC,id:asc")
	require.NoError(t, err)
	assert.Equal(t, []query.SortConfiguration{
		{Field: "name", Direction: query.SortDirectionAsc},
		{Field: "created_at", Direction: query.SortDirectionDesc},
		{Field: "id", Direction: query.SortDirectionAsc},
	}, sort)

	_, err = parseSort("name:up")
	assert.ErrorContains(t, err, "invalid sort direction")
}

func TestCompileCommand(t *testing.T) {
	dir := workspace(t)

	out, err := run(t, "--dir", dir, "compile",
		"-t", "tasks",
		"-s", "id,user_id.name",
		"-w", `{"status":{"eq":"open"}}`,
		"--sort", "id:desc",
		"--page", "2",
		"--limit", "5",
	)
	require.NoError(t, err)
	assert.Equal(t, `from(tasks)
 0. select(id,user_id !inner (name), count=exact)
 1. eq(status, open)
 2. order(id, ascending=false)
 3. range(5, 10)
 4. limit(5)
`, out)
}

func TestCompileCommand_Descriptor(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "descriptor.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"table":"tasks","select":["id","user_id.name"],"where":{"id":{"eq":3}},"single":true}`), 0o600))

	out, err := run(t, "--dir", dir, "compile", "-d", "@"+path, "--left-join")
	require.NoError(t, err)
	assert.Equal(t, `from(tasks)
 0. select(id,user_id (name), count=exact)
 1. eq(id, 3)
 2. maybeSingle()
`, out)
}

func TestCompileCommand_PageZero(t *testing.T) {
	dir := workspace(t)

	out, err := run(t, "--dir", dir, "compile", "-t", "tasks", "--page", "0", "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "range(-10, 0)")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dataloader.yaml"), []byte("loader:\n  strict: true\n"), 0o600))
	_, err = run(t, "--dir", dir, "compile", "-t", "tasks", "--page", "0", "--limit", "10")
	assert.ErrorContains(t, err, "page must be 1 or greater")
}

func TestCompileCommand_Errors(t *testing.T) {
	dir := workspace(t)

	_, err := run(t, "--dir", dir, "compile", "-s", "id")
	assert.ErrorContains(t, err, "--table")

	_, err = run(t, "--dir", dir, "compile", "-t", "tasks", "-w", `{"id":`)
	assert.ErrorContains(t, err, "failed to parse filter")

	_, err = run(t, "--dir", dir, "compile", "-t", "tasks", "-s", "a.b.c")
	assert.ErrorContains(t, err, "invalid descriptor")
}

func TestQueryCommand_SQLite(t *testing.T) {
	dir := workspace(t)
	dsn := filepath.Join(dir, "app.db")
	tables := filepath.Join(dir, "tables.json")
	require.NoError(t, os.WriteFile(tables, []byte(accountsJSON), 0o600))

	ctx := context.Background()
	defs, err := readTables("@" + tables)
	require.NoError(t, err)
	engine, err := sqlengine.OpenSQLite(ctx, dsn, nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Register(defs...))
	require.NoError(t, engine.CreateTables(ctx))
	_, err = engine.Insert(ctx, "accounts",
		map[string]any{"id": "a1", "name": "Ada"},
		map[string]any{"id": "a2", "name": "Bob"},
		map[string]any{"id": "a3", "name": "Cy"},
	)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	out, err := run(t, "--dir", dir, "query",
		"--engine", "sqlite", "--dsn", dsn, "--tables", "@"+tables,
		"-t", "accounts", "-s", "id,name", "--sort", "name:desc", "--limit", "2",
	)
	require.NoError(t, err)

	var got struct {
		Data       []map[string]any        `json:"data"`
		Count      int64                   `json:"count"`
		Pagination *query.PaginationResult `json:"pagination"`
		Error      *string                 `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Nil(t, got.Error)
	assert.Equal(t, []map[string]any{{"id": "a3", "name": "Cy"}, {"id": "a2", "name": "Bob"}}, got.Data)
	assert.Equal(t, int64(3), got.Count)
	assert.Equal(t, &query.PaginationResult{Page: 1, PageSize: 2, PageCount: 2, Total: 3}, got.Pagination)

	// Engine errors are reported in the output, not as a command failure.
	out, err = run(t, "--dir", dir, "query",
		"--engine", "sqlite", "--dsn", dsn, "--tables", "@"+tables,
		"-t", "accounts", "-s", "id,email",
	)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "column does not exist")
}

func TestQueryCommand_EngineFlags(t *testing.T) {
	dir := workspace(t)

	_, err := run(t, "--dir", dir, "query", "--engine", "sqlite", "-t", "accounts")
	assert.ErrorContains(t, err, "--dsn is required")

	_, err = run(t, "--dir", dir, "query", "--engine", "sqlite", "--dsn", ":memory:", "-t", "accounts")
	assert.ErrorContains(t, err, "--tables is required")

	_, err = run(t, "--dir", dir, "query", "--engine", "mysql", "-t", "accounts")
	assert.ErrorContains(t, err, `unknown engine "mysql"`)
}

func TestReadTables(t *testing.T) {
	defs, err := readTables(`{"name": "notes", "fields": {"id": {"type": "integer"}}}`)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "notes", defs[0].Name)

	_, err = readTables(`[{"name": "", "fields": {}}]`)
	assert.ErrorIs(t, err, schema.ErrInvalidDefinition)
}

func TestEnqueueCommand(t *testing.T) {
	dir := workspace(t)

	var got map[string]any
	var dedup string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dedup = r.Header.Get("Upstash-Deduplication-Id")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer server.Close()

	config := "queue:\n  url: https://example.com/hook\n  token: secret\n  base_url: " + server.URL + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dataloader.yaml"), []byte(config), 0o600))

	out, err := run(t, "--dir", dir, "enqueue", "--body", `{"userId":"a1"}`, "--generate-dedup-id")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "✓ Queued message msg_1\n"))
	assert.Equal(t, map[string]any{"userId": "a1"}, got)
	assert.Len(t, dedup, 36)
	assert.Contains(t, out, dedup)

	_, err = run(t, "--dir", dir, "enqueue", "--body", `not json`)
	assert.ErrorContains(t, err, "task body must be JSON")
}

func TestEnqueueCommand_MissingConfig(t *testing.T) {
	dir := workspace(t)
	_, err := run(t, "--dir", dir, "enqueue")
	assert.ErrorContains(t, err, "QSTASH_QUEUE_URL is required")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dataloader version "))

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "goVersion")
}
