// Package answer turns a question about the news database into an LLM answer
// grounded in matching articles, either through a caller-supplied (or
// model-generated) SQL query or through embedding similarity.
package answer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrPromptRequired    = errors.New("prompt is required")
	ErrSearchUnavailable = errors.New("semantic search is not configured")
)

const (
	maxContentRunes = 2000
	noResultsAnswer = "No matching articles were found."
)

type Source struct {
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url"`
}

type contextArticle struct {
	Title      string
	Content    string
	SourceName string
	URL        string
}

// userMessage frames the question together with the article context.
func userMessage(articles []contextArticle, prompt string) string {
	parts := make([]string, 0, len(articles))
	for _, a := range articles {
		parts = append(parts, fmt.Sprintf("Title: %s\nContent: %s", a.Title, truncate(a.Content, maxContentRunes)))
	}
	return fmt.Sprintf("Based on these news articles:\n\n%s\n\nAnswer this question: %s", strings.Join(parts, "\n\n"), prompt)
}

func sourcesOf(articles []contextArticle) []Source {
	seen := make(map[Source]struct{}, len(articles))
	sources := make([]Source, 0, len(articles))
	for _, a := range articles {
		if a.SourceName == "" && a.URL == "" {
			continue
		}
		s := Source{SourceName: a.SourceName, SourceURL: a.URL}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		sources = append(sources, s)
	}
	return sources
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
