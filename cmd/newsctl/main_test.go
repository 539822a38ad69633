package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--base-url", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/articles/count", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_articles":9}`))
	}))
	defer srv.Close()

	out, err := run(t, srv, "count")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_articles":9}`, out)
}

func TestArticlesFlags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "3", q.Get("page_size"))
		assert.Equal(t, []string{"coindesk", "decrypt"}, q["source_name"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total":0,"page":2,"page_size":3,"articles":[]}`))
	}))
	defer srv.Close()

	out, err := run(t, srv, "articles", "--page", "2", "--page-size", "3", "--source", "coindesk", "--source", "decrypt")
	require.NoError(t, err)

	var page map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.EqualValues(t, 2, page["page"])
}

func TestSQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "any etf news?", body["prompt"])
		assert.Equal(t, "SELECT * FROM articles", body["sql_query"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sql_query":"SELECT * FROM articles","answer":"yes","found_results":true,"sources":[]}`))
	}))
	defer srv.Close()

	out, err := run(t, srv, "sql", "any etf news?", "--query", "SELECT * FROM articles")
	require.NoError(t, err)
	assert.Contains(t, out, `"answer": "yes"`)

	_, err = run(t, srv, "sql")
	assert.EqualError(t, err, "a prompt is required")
}

func TestAPIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"semantic search is not configured"}`))
	}))
	defer srv.Close()

	_, err := run(t, srv, "search", "btc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic search is not configured")
}
