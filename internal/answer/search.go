package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/0x0BSoD/cryptonews/internal/llm"
	"github.com/0x0BSoD/cryptonews/internal/model"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

type SemanticStore interface {
	SemanticSearch(ctx context.Context, embedding []float32, limit int) ([]model.Article, error)
}

type SearchRequest struct {
	SystemPrompt string `json:"system_prompt"`
	Prompt       string `json:"prompt"`
	Model        string `json:"model"`
	Limit        int    `json:"limit"`
}

type SearchResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type Searcher struct {
	store        SemanticStore
	embedder     llm.Embedder
	completer    llm.Completer
	systemPrompt string
}

// NewSearcher returns a Searcher. A nil embedder makes every search fail
// with ErrSearchUnavailable.
func NewSearcher(store SemanticStore, embedder llm.Embedder, completer llm.Completer, systemPrompt string) *Searcher {
	return &Searcher{
		store:        store,
		embedder:     embedder,
		completer:    completer,
		systemPrompt: systemPrompt,
	}
}

func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}
	if s.embedder == nil {
		return nil, ErrSearchUnavailable
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	vectors, err := s.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed prompt: %w", llm.ErrEmptyResponse)
	}

	found, err := s.store.SemanticSearch(ctx, vectors[0], limit)
	if err != nil {
		return nil, err
	}

	articles := lo.Map(found, func(a model.Article, _ int) contextArticle {
		return contextArticle{
			Title:      a.Title,
			Content:    a.Content,
			SourceName: a.SourceName,
			URL:        firstNonEmpty(a.ArticleURL, a.SourceURL),
		}
	})

	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = s.systemPrompt
	}

	answer, err := s.completer.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: userMessage(articles, prompt),
		Model:  req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("answer prompt: %w", err)
	}

	return &SearchResponse{Answer: answer, Sources: sourcesOf(articles)}, nil
}
