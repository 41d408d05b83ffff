package postgrest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/asaidimu/go-dataloader/core/loader"
	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgrst "github.com/supabase-community/postgrest-go"
)

// fakeServer answers every request with a canned body and remembers the last
// request it saw.
type fakeServer struct {
	*httptest.Server

	mu           sync.Mutex
	status       int
	body         string
	contentRange string
	path         string
	params       url.Values
	header       http.Header
}

func newFakeServer(t *testing.T, body, contentRange string) *fakeServer {
	t.Helper()
	fs := &fakeServer{status: http.StatusOK, body: body, contentRange: contentRange}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.path = r.URL.Path
		fs.params = r.URL.Query()
		fs.header = r.Header.Clone()
		status, body, cr := fs.status, fs.body, fs.contentRange
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if cr != "" {
			w.Header().Set("Content-Range", cr)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) last() (string, url.Values, http.Header) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.path, fs.params, fs.header
}

func newTestClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	client, err := Dial(fs.URL, "anon-key", "public", nil)
	require.NoError(t, err)
	return client
}

func load(t *testing.T, client *Client, props query.Props) *query.QueryResult {
	t.Helper()
	l, err := loader.NewLoader(client, nil, nil)
	require.NoError(t, err)
	result, err := l.Load(context.Background(), props)
	require.NoError(t, err)
	return result
}

func TestNewClient_NilSource(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExecute_ListWithCount(t *testing.T) {
	fs := newFakeServer(t, `[{"id":1,"user_id":"u1"},{"id":2,"user_id":"u2"}]`, "0-1/42")
	client := newTestClient(t, fs)

	result := load(t, client, query.Props{
		Table:     "tasks",
		Select:    query.Columns("id", "user_id", "accounts.onboarded"),
		Where:     query.Filter{{Field: "id", Predicates: []query.Predicate{query.Gte(0), query.Lte(3)}}},
		Sort:      []query.SortConfiguration{{Field: "name", Direction: query.SortDirectionAsc}},
		Page:      query.IntPtr(2),
		Limit:     query.IntPtr(5),
		CamelCase: true,
	})
	require.NoError(t, result.Error)

	path, params, header := fs.last()
	assert.Equal(t, "/tasks", path)
	assert.Equal(t, "id,user_id,accounts!inner(onboarded)", params.Get("select"))
	assert.Equal(t, "gte.0", params.Get("id"))
	assert.Equal(t, "(id.lte.3)", params.Get("and"))
	assert.Equal(t, "name.asc.nullslast", params.Get("order"))
	assert.Equal(t, "5", params.Get("offset"))
	assert.Equal(t, "5", params.Get("limit"))
	assert.Equal(t, "count=exact", header.Get("Prefer"))
	assert.Equal(t, "anon-key", header.Get("apikey"))

	assert.Equal(t, int64(42), result.Count)
	assert.Equal(t, []map[string]any{
		{"id": float64(1), "userId": "u1"},
		{"id": float64(2), "userId": "u2"},
	}, result.Data)
}

func TestExecute_FilterEncoding(t *testing.T) {
	fs := newFakeServer(t, `[]`, "*/0")
	client := newTestClient(t, fs)

	result := load(t, client, query.Props{
		Table: "tasks",
		Where: query.Filter{
			{Field: "status", Predicates: []query.Predicate{query.In("open", "in progress")}},
			{Field: "tags", Predicates: []query.Predicate{query.Contains([]string{"a", "b"})}},
			{Field: "archived", Predicates: []query.Predicate{query.Is(false)}},
			{Field: "deleted_at", Predicates: []query.Predicate{query.Is(nil)}},
			{Field: "owner", Predicates: []query.Predicate{query.Not(query.Eq("bob"))}},
			{Field: "title", Predicates: []query.Predicate{query.Ilike("%docs%")}},
			{Field: "body", Predicates: []query.Predicate{query.TextSearch("fat & rat")}},
			{Field: "during", Predicates: []query.Predicate{query.RangeGt("[2000-01-01,2000-01-02)")}},
		},
	})
	require.NoError(t, result.Error)

	_, params, _ := fs.last()
	assert.Equal(t, `in.(open,"in progress")`, params.Get("status"))
	assert.Equal(t, "cs.{a,b}", params.Get("tags"))
	assert.Equal(t, "is.false", params.Get("archived"))
	assert.Equal(t, "is.null", params.Get("deleted_at"))
	assert.Equal(t, "not.eq.bob", params.Get("owner"))
	assert.Equal(t, "ilike.%docs%", params.Get("title"))
	assert.Equal(t, "fts.fat & rat", params.Get("body"))
	assert.Equal(t, "sr.[2000-01-01,2000-01-02)", params.Get("during"))
	assert.Equal(t, []map[string]any{}, result.Data)
	assert.Equal(t, int64(0), result.Count)
}

func TestExecute_OrGroups(t *testing.T) {
	fs := newFakeServer(t, `[]`, "")
	client := newTestClient(t, fs)

	result := load(t, client, query.Props{
		Table: "tasks",
		Where: query.Filter{
			{Field: "name", Predicates: []query.Predicate{query.Or(query.Eq("a, b"), query.Like("c%"))}},
			{Field: "id", Predicates: []query.Predicate{query.Or(query.Lt(2), query.Gt(8))}},
		},
	})
	require.NoError(t, result.Error)

	_, params, _ := fs.last()
	assert.Equal(t, `(name.eq."a, b",name.like.c%)`, params.Get("or"))
	assert.Equal(t, "(or(id.lt.2,id.gt.8))", params.Get("and"))
}

func TestExecute_ReservedColumnName(t *testing.T) {
	fs := newFakeServer(t, `[]`, "")
	client := newTestClient(t, fs)

	load(t, client, query.Props{
		Table: "tasks",
		Where: query.Filter{{Field: "order", Predicates: []query.Predicate{query.Eq(3)}}},
		Sort:  []query.SortConfiguration{{Field: "id", Direction: query.SortDirectionDesc}},
	})

	_, params, _ := fs.last()
	assert.Equal(t, "(order.eq.3)", params.Get("and"))
	assert.Equal(t, "id.desc.nullslast", params.Get("order"))
}

func TestExecute_MaybeSingle(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected any
		err      error
	}{
		{"no rows", `[]`, nil, nil},
		{"one row", `[{"id":7}]`, map[string]any{"id": float64(7)}, nil},
		{"many rows", `[{"id":7},{"id":8}]`, nil, ErrMultipleRows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t, tt.body, "")
			client := newTestClient(t, fs)

			result := load(t, client, query.Props{
				Table:  "accounts",
				Where:  query.Filter{{Field: "user_id", Predicates: []query.Predicate{query.Eq("u1")}}},
				Sort:   []query.SortConfiguration{{Field: "id", Direction: query.SortDirectionAsc}},
				Limit:  query.IntPtr(10),
				Single: true,
			})

			_, params, _ := fs.last()
			assert.Empty(t, params.Get("order"))
			assert.Empty(t, params.Get("limit"))
			assert.Equal(t, "eq.u1", params.Get("user_id"))

			if tt.err != nil {
				assert.ErrorIs(t, result.Error, tt.err)
				return
			}
			require.NoError(t, result.Error)
			assert.Equal(t, tt.expected, result.Data)
		})
	}
}

func TestExecute_ServerError(t *testing.T) {
	fs := newFakeServer(t, `{"code":"42P01","message":"relation \"public.missing\" does not exist"}`, "")
	fs.status = http.StatusNotFound
	client := newTestClient(t, fs)

	result := load(t, client, query.Props{Table: "missing"})
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "42P01")
	assert.Equal(t, []map[string]any{}, result.Data)
}

func TestExecute_OperatorWithoutPostgrestForm(t *testing.T) {
	fs := newFakeServer(t, `[]`, "")
	client := newTestClient(t, fs)

	resp := client.From("tasks").Select("*", "").Not("id", query.OperatorOr, query.Conditions{}).Execute(context.Background())
	assert.ErrorIs(t, resp.Error, query.ErrUnknownOperator)
}

func TestExecute_CanceledContext(t *testing.T) {
	fs := newFakeServer(t, `[]`, "")
	client := newTestClient(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := client.From("tasks").Select("*", "").Execute(ctx)
	assert.ErrorIs(t, resp.Error, context.Canceled)
}

func TestHandle_Immutable(t *testing.T) {
	fs := newFakeServer(t, `[]`, "")
	client := newTestClient(t, fs)

	base := client.From("tasks").Select("*", "")
	base.Eq("id", 1)
	resp := base.Execute(context.Background())
	require.NoError(t, resp.Error)

	_, params, _ := fs.last()
	assert.Empty(t, params.Get("id"))
}

func TestSource_PostgrestClient(t *testing.T) {
	fs := newFakeServer(t, `[{"id":1}]`, "")
	client, err := NewClient(pgrst.NewClient(fs.URL+"/rest/v1", "", nil), nil)
	require.NoError(t, err)

	resp := client.From("tasks").Select("id", "").Limit(1).Execute(context.Background())
	require.NoError(t, resp.Error)
	assert.Nil(t, resp.Count)

	path, params, _ := fs.last()
	assert.Equal(t, "/rest/v1/tasks", path)
	assert.Equal(t, "1", params.Get("limit"))
}

func TestScalar(t *testing.T) {
	s := "x"
	tests := []struct {
		in       any
		expected string
	}{
		{nil, "null"},
		{"abc", "abc"},
		{true, "true"},
		{12, "12"},
		{1.5, "1.5"},
		{&s, "x"},
		{(*string)(nil), "null"},
		{map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, scalar(tt.in))
	}
}
