package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaCompleter talks to a local Ollama server. Requests are serialized;
// a single local model handles one generation at a time anyway.
type OllamaCompleter struct {
	client  *api.Client
	model   string
	timeout time.Duration
	mu      sync.Mutex
}

func NewOllamaCompleter(baseURL, model string, timeout time.Duration) *OllamaCompleter {
	httpClient := &http.Client{}

	c := api.NewClient(&url.URL{
		Scheme: "http",
		Host:   strings.TrimPrefix(baseURL, "http://"),
		Path:   "/",
	}, httpClient)

	return &OllamaCompleter{
		client:  c,
		model:   model,
		timeout: timeout,
	}
}

func (o *OllamaCompleter) Complete(ctx context.Context, req Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	genReq := &api.GenerateRequest{
		Model:  pickModel(req.Model, o.model),
		System: req.System,
		Prompt: req.Prompt,
	}

	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	var responseFlow []string
	err := o.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		responseFlow = append(responseFlow, resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}

	answer := strings.Join(responseFlow, "")
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}
