package sqlguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Allowed(t *testing.T) {
	g := New()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "list tables",
			query: "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public';",
			want:  "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'",
		},
		{
			name:  "count rows",
			query: "SELECT COUNT(*) FROM articles",
			want:  "SELECT COUNT(*) FROM articles",
		},
		{
			name:  "latest first",
			query: "SELECT * FROM articles ORDER BY publishedat DESC LIMIT 10;",
			want:  "SELECT * FROM articles ORDER BY publishedat DESC LIMIT 10",
		},
		{
			name:  "title search",
			query: "SELECT * FROM articles WHERE title ILIKE '%bitcoin%' ORDER BY publishedat DESC LIMIT 5",
			want:  "SELECT * FROM articles WHERE title ILIKE '%bitcoin%' ORDER BY publishedat DESC LIMIT 5",
		},
		{
			name:  "source OR filter",
			query: "SELECT * FROM articles WHERE sourcename = 'Coindesk' OR sourcename = 'Decrypt'",
			want:  "SELECT * FROM articles WHERE sourcename = 'Coindesk' OR sourcename = 'Decrypt'",
		},
		{
			name:  "comments stripped",
			query: "SELECT title -- headline\nFROM articles /* all of them */",
			want:  "SELECT title  \nFROM articles",
		},
		{
			name:  "keywords inside strings are ignored",
			query: "SELECT * FROM articles WHERE title ILIKE '%drop table; delete%'",
			want:  "SELECT * FROM articles WHERE title ILIKE '%drop table; delete%'",
		},
		{
			name:  "cte and join with alias",
			query: "WITH recent AS (SELECT * FROM articles a WHERE a.publishedat > now() - interval '1 day') SELECT r.title FROM recent r JOIN articles b ON b.id = r.id",
			want:  "WITH recent AS (SELECT * FROM articles a WHERE a.publishedat > now() - interval '1 day') SELECT r.title FROM recent r JOIN articles b ON b.id = r.id",
		},
		{
			name:  "extract from is not a relation",
			query: "SELECT EXTRACT(YEAR FROM publishedat) AS y, COUNT(*) FROM articles GROUP BY y",
			want:  "SELECT EXTRACT(YEAR FROM publishedat) AS y, COUNT(*) FROM articles GROUP BY y",
		},
		{
			name:  "recursive cte references itself",
			query: "WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 3) SELECT i FROM n",
			want:  "WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 3) SELECT i FROM n",
		},
		{
			name:  "second cte reads the first",
			query: "WITH a AS (SELECT id FROM articles), b AS (SELECT id FROM a) SELECT * FROM b",
			want:  "WITH a AS (SELECT id FROM articles), b AS (SELECT id FROM a) SELECT * FROM b",
		},
		{
			name:  "nested cte used inside its sub-select",
			query: "SELECT s.id FROM (WITH x AS (SELECT id FROM articles) SELECT id FROM x) s",
			want:  "SELECT s.id FROM (WITH x AS (SELECT id FROM articles) SELECT id FROM x) s",
		},
		{
			name:  "table query on allowed relation",
			query: "SELECT id FROM articles UNION TABLE articles",
			want:  "SELECT id FROM articles UNION TABLE articles",
		},
		{
			name:  "timestamp with time zone",
			query: "SELECT CAST(publishedat AS timestamp with time zone) FROM articles",
			want:  "SELECT CAST(publishedat AS timestamp with time zone) FROM articles",
		},
		{
			name:  "sub-select",
			query: `SELECT q.sourcename FROM (SELECT DISTINCT sourcename FROM "articles") q`,
			want:  `SELECT q.sourcename FROM (SELECT DISTINCT sourcename FROM "articles") q`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Validate(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_Rejected(t *testing.T) {
	g := New()

	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{"empty", "  ;  ", "empty statement"},
		{"only comment", "-- nothing", "empty statement"},
		{"update", "UPDATE articles SET title = 'x'", "only SELECT statements are allowed"},
		{"stacked statements", "SELECT 1; DROP TABLE articles", "multiple statements are not allowed"},
		{"select into", "SELECT * INTO stolen FROM articles", "keyword is not allowed"},
		{"cte with delete", "WITH d AS (DELETE FROM articles RETURNING *) SELECT * FROM d", "keyword is not allowed"},
		{"row locking", "SELECT * FROM articles FOR UPDATE", "keyword is not allowed"},
		{"sleep", "SELECT pg_sleep(30)", "function is not allowed"},
		{"qualified sleep", "SELECT pg_catalog.pg_sleep(30)", "function is not allowed"},
		{"quoted sleep", `SELECT "pg_sleep"(30)`, "function is not allowed"},
		{"read file", "SELECT pg_read_file('/etc/passwd')", "function is not allowed"},
		{"other table", "SELECT * FROM users", "relation is not allowed"},
		{"catalog", "SELECT * FROM pg_catalog.pg_shadow", "relation is not allowed"},
		{"joined table", "SELECT * FROM articles a JOIN pg_roles r ON true", "relation is not allowed"},
		{"comma list", "SELECT * FROM articles, pg_user", "relation is not allowed"},
		{"comma after sub-select", "SELECT * FROM (SELECT 1) q, pg_authid", "relation is not allowed"},
		{"comma after join", "SELECT * FROM articles a JOIN articles b ON a.id = b.id, pg_user", "relation is not allowed"},
		{"nested sub-select", "SELECT (SELECT passwd FROM pg_shadow LIMIT 1) FROM articles", "relation is not allowed"},
		{"table function", "SELECT * FROM generate_series(1, 10)", "table functions are not allowed"},
		{"table query in cte", "WITH t AS (TABLE pg_user) SELECT * FROM t", "relation is not allowed"},
		{"table query after union", "SELECT id FROM articles UNION ALL TABLE pg_user", "relation is not allowed"},
		{"cte out of scope", "SELECT usename FROM (WITH pg_user AS (SELECT 1) SELECT 1) s, pg_user", "relation is not allowed"},
		{"cte used before it is declared", "WITH a AS (SELECT * FROM pg_user), pg_user AS (SELECT 1) SELECT * FROM a", "relation is not allowed"},
		{"cte from sibling sub-select", "SELECT * FROM (WITH x AS (SELECT 1) SELECT 1) a JOIN x ON true", "relation is not allowed"},
		{"query as xml", "SELECT query_to_xml('select * from pg_user', true, false, '')", "function is not allowed"},
		{"qualified table as xml", "SELECT pg_catalog.table_to_xml('pg_authid', true, false, '')", "function is not allowed"},
		{"cursor as xml", "SELECT cursor_to_xml('c', 10, true, false, '')", "function is not allowed"},
		{"text search stats", "SELECT * FROM articles WHERE title = (SELECT ts_stat('select 1')::text)", "function is not allowed"},
		{"large object", "SELECT lo_get(16384)", "function is not allowed"},
		{"quoted xml function", `SELECT "query_to_xml"('select 1', true, false, '')`, "function is not allowed"},
		{"bind parameter", "SELECT * FROM articles WHERE id = $1", "bind parameters are not supported"},
		{"unterminated string", "SELECT 'abc FROM articles", "unterminated string literal"},
		{"unbalanced", "SELECT (1 FROM articles", "unbalanced parentheses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Validate(tt.query)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))

			var gErr *Error
			require.True(t, errors.As(err, &gErr))
			assert.Equal(t, tt.reason, gErr.Reason)
		})
	}
}

func TestNew_CustomAllowList(t *testing.T) {
	g := New(" Sources ")

	_, err := g.Validate("SELECT name FROM sources")
	assert.NoError(t, err)

	_, err = g.Validate("SELECT title FROM articles")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestLex_DollarQuoted(t *testing.T) {
	tokens, _, err := lex("SELECT $tag$it's; fine$tag$, $$x$$")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, tokString, tokens[1].kind)
	assert.Equal(t, "$tag$it's; fine$tag$", tokens[1].text)
	assert.Equal(t, tokString, tokens[3].kind)
}
