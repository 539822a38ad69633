package llm

import "testing"

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain statement unchanged",
			input: "SELECT * FROM articles LIMIT 5;",
			want:  "SELECT * FROM articles LIMIT 5;",
		},
		{
			name:  "strips sql fenced block",
			input: "```sql\nSELECT title FROM articles\n```",
			want:  "SELECT title FROM articles",
		},
		{
			name:  "strips plain fenced block",
			input: "```\nSELECT 1\n```",
			want:  "SELECT 1",
		},
		{
			name:  "prose around fence",
			input: "Here is a query with limits:\n```sql\nSELECT id FROM articles LIMIT 5;\n```\nHope it helps.",
			want:  "SELECT id FROM articles LIMIT 5;",
		},
		{
			name:  "prose before statement",
			input: "Sure! select id from articles; -- done",
			want:  "select id from articles;",
		},
		{
			name:  "semicolon inside string literal",
			input: "SELECT * FROM articles WHERE title ILIKE '%a;b%'; extra",
			want:  "SELECT * FROM articles WHERE title ILIKE '%a;b%';",
		},
		{
			name:  "escaped quote before semicolon",
			input: "SELECT 'it''s; fine' FROM articles; DROP TABLE articles",
			want:  "SELECT 'it''s; fine' FROM articles;",
		},
		{
			name:  "semicolon inside quoted identifier",
			input: `SELECT "a;b" FROM articles; x`,
			want:  `SELECT "a;b" FROM articles;`,
		},
		{
			name:  "semicolon inside comment",
			input: "SELECT id /* a; b */ FROM articles -- c;\nLIMIT 1; x",
			want:  "SELECT id /* a; b */ FROM articles -- c;\nLIMIT 1;",
		},
		{
			name:  "semicolon inside dollar quote",
			input: "SELECT $$a;b$$ FROM articles; x",
			want:  "SELECT $$a;b$$ FROM articles;",
		},
		{
			name:  "cte kept",
			input: "WITH x AS (SELECT 1) SELECT * FROM x",
			want:  "WITH x AS (SELECT 1) SELECT * FROM x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanSQL(tt.input)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
