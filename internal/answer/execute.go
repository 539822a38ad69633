package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/0x0BSoD/cryptonews/internal/llm"
	"github.com/0x0BSoD/cryptonews/internal/storage"
)

type ArticleQuerier interface {
	Query(ctx context.Context, query string, opts storage.QueryOptions) (*storage.QueryResult, error)
}

type QueryValidator interface {
	Validate(query string) (string, error)
}

type ExecuteRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
	SQLQuery     string `json:"sql_query"`
}

type ExecuteResponse struct {
	SQLQuery     string   `json:"sql_query"`
	Answer       string   `json:"answer"`
	FoundResults bool     `json:"found_results"`
	Sources      []Source `json:"sources"`
	Error        string   `json:"error,omitempty"`
}

type Executor struct {
	store        ArticleQuerier
	guard        QueryValidator
	completer    llm.Completer
	systemPrompt string
	queryOpts    storage.QueryOptions
}

func NewExecutor(
	store ArticleQuerier,
	guard QueryValidator,
	completer llm.Completer,
	systemPrompt string,
	queryOpts storage.QueryOptions,
) *Executor {
	return &Executor{
		store:        store,
		guard:        guard,
		completer:    completer,
		systemPrompt: systemPrompt,
		queryOpts:    queryOpts,
	}
}

// Execute runs req.SQLQuery (or a query generated from req.Prompt when it is
// empty) and asks the model to answer the prompt from the returned rows.
// Rejected queries are returned as errors; a query that fails in the
// database is reported in the response's Error field.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}

	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = e.systemPrompt
	}

	query := strings.TrimSpace(req.SQLQuery)
	if query == "" {
		generated, err := e.generateSQL(ctx, prompt, systemPrompt, req.Model)
		if err != nil {
			return nil, err
		}
		query = generated
	}

	validated, err := e.guard.Validate(query)
	if err != nil {
		return nil, err
	}

	resp := &ExecuteResponse{SQLQuery: validated, Sources: []Source{}}

	result, err := e.store.Query(ctx, validated, e.queryOpts)
	if err != nil {
		slog.Warn("query execution failed", "query", validated, "err", err)
		resp.Error = err.Error()
		return resp, nil
	}

	if len(result.Rows) == 0 {
		resp.Answer = noResultsAnswer
		return resp, nil
	}

	articles := rowsToArticles(result)
	resp.FoundResults = true
	resp.Sources = sourcesOf(articles)

	answer, err := e.completer.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: userMessage(articles, prompt),
		Model:  req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("answer prompt: %w", err)
	}
	resp.Answer = answer

	return resp, nil
}

const sqlGenerationPrompt = `Context: %s
Question: %s

The PostgreSQL table "articles" has the columns: id, slug, title, content, clean_content,
publishedat, authorname, category, sourcename, sourceurl, imageurl, articleurl, tags,
createdat, updatedat.

Generate a PostgreSQL query that:
1. Uses appropriate WHERE clauses with ILIKE for text search
2. Always includes ORDER BY and LIMIT clauses
3. Returns these columns: id, title, content, publishedat, sourcename, sourceurl
4. Uses exact column names (all lowercase)
5. Limits results to 5 records

Reply with the SQL statement only.`

func (e *Executor) generateSQL(ctx context.Context, prompt, systemPrompt, model string) (string, error) {
	reply, err := e.completer.Complete(ctx, llm.Request{
		System: "You translate questions about a crypto news database into a single read-only PostgreSQL SELECT statement.",
		Prompt: fmt.Sprintf(sqlGenerationPrompt, systemPrompt, prompt),
		Model:  model,
	})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}

	query := llm.CleanSQL(reply)
	if query == "" {
		return "", fmt.Errorf("generate sql: %w", llm.ErrEmptyResponse)
	}
	return query, nil
}

// rowsToArticles picks the article fields out of arbitrary result rows. Rows
// with neither title nor content are rendered column by column instead.
func rowsToArticles(result *storage.QueryResult) []contextArticle {
	articles := make([]contextArticle, 0, len(result.Rows))
	for _, row := range result.Rows {
		a := contextArticle{
			Title:      stringValue(row["title"]),
			Content:    stringValue(row["content"]),
			SourceName: stringValue(row["sourcename"]),
			URL:        firstNonEmpty(stringValue(row["articleurl"]), stringValue(row["sourceurl"])),
		}
		if a.Title == "" && a.Content == "" {
			a.Content = renderRow(result.Columns, row)
		}
		articles = append(articles, a)
	}
	return articles
}

func renderRow(columns []string, row map[string]any) string {
	if len(columns) == 0 {
		for k := range row {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}

	lines := make([]string, 0, len(columns))
	for _, c := range columns {
		lines = append(lines, fmt.Sprintf("%s: %s", c, stringValue(row[c])))
	}
	return strings.Join(lines, "\n")
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
