// Package llm wraps the chat and embedding backends used to answer questions
// about stored articles.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Request struct {
	System string
	Prompt string
	// Model overrides the backend's default model when non-empty.
	Model string
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	TypeOpenAI    = "openai"
	TypeOllama    = "ollama"
	TypeAnthropic = "anthropic"
)

type Options struct {
	Type    string
	BaseURL string
	Key     string
	Model   string
	Timeout time.Duration
}

var ErrEmptyResponse = errors.New("empty response from model")

// New builds the Completer selected by opts.Type.
func New(opts Options) (Completer, error) {
	switch strings.ToLower(opts.Type) {
	case TypeOpenAI, "":
		if opts.Key == "" {
			return nil, fmt.Errorf("ai_key is required when ai_type is %q", TypeOpenAI)
		}
		return NewOpenAICompleter(opts.BaseURL, opts.Key, opts.Model, opts.Timeout), nil
	case TypeOllama:
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("ai_base_url is required when ai_type is %q", TypeOllama)
		}
		return NewOllamaCompleter(opts.BaseURL, opts.Model, opts.Timeout), nil
	case TypeAnthropic:
		if opts.Key == "" {
			return nil, fmt.Errorf("ai_key is required when ai_type is %q", TypeAnthropic)
		}
		return NewAnthropicCompleter(opts.BaseURL, opts.Key, opts.Model, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown ai_type %q", opts.Type)
	}
}

func pickModel(requested, fallback string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	return fallback
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
