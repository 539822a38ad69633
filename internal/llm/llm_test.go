package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    any
		wantErr string
	}{
		{name: "openai", opts: Options{Type: "openai", Key: "k"}, want: &OpenAICompleter{}},
		{name: "default is openai", opts: Options{Key: "k"}, want: &OpenAICompleter{}},
		{name: "openai without key", opts: Options{Type: "openai"}, wantErr: "ai_key is required"},
		{name: "ollama", opts: Options{Type: "Ollama", BaseURL: "localhost:11434"}, want: &OllamaCompleter{}},
		{name: "ollama without url", opts: Options{Type: "ollama"}, wantErr: "ai_base_url is required"},
		{name: "anthropic", opts: Options{Type: "anthropic", Key: "k"}, want: &AnthropicCompleter{}},
		{name: "unknown", opts: Options{Type: "gemini"}, wantErr: `unknown ai_type "gemini"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ETF inflows rose."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAICompleter(srv.URL+"/v1", "test", "gpt-4o-mini", time.Second)
	answer, err := c.Complete(context.Background(), Request{System: "be brief", Prompt: "what happened?", Model: "gpt-4o"})
	require.NoError(t, err)

	assert.Equal(t, "ETF inflows rose.", answer)
	assert.Equal(t, "gpt-4o", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "what happened?", got.Messages[1].Content)
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	c := NewOpenAICompleter(srv.URL+"/v1", "test", "gpt-4o-mini", time.Second)
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// answer in reverse order to check reordering by index
		data := make([]string, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d]}`, i, len(req.Input[i])))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","data":[%s],"model":"text-embedding-ada-002"}`, strings.Join(data, ","))
	}))
	defer srv.Close()

	texts := make([]string, embeddingBatchSize+2)
	for i := range texts {
		texts[i] = strings.Repeat("a", i+1)
	}

	e := NewOpenAIEmbedder(srv.URL+"/v1", "test", "", time.Second)
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i + 1)}, v)
	}
}

func TestOllamaCompleter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req struct {
			Model  string `json:"model"`
			System string `json:"system"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.Equal(t, "sys", req.System)

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3","response":"Bitcoin ","done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","response":"is up.","done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaCompleter(strings.TrimPrefix(srv.URL, "http://"), "llama3", time.Second)
	answer, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "price?"})
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin is up.", answer)
}

func TestAnthropicCompleter_Complete(t *testing.T) {
	type messagesBody struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}

	tests := []struct {
		name      string
		req       Request
		reply     string
		wantModel string
		want      string
		wantErr   error
	}{
		{
			name:      "default model",
			req:       Request{System: "be brief", Prompt: "what happened?"},
			reply:     `[{"type":"text","text":"BTC "},{"type":"text","text":"rallied."}]`,
			wantModel: "claude-default",
			want:      "BTC rallied.",
		},
		{
			name:      "request model wins",
			req:       Request{System: "be brief", Prompt: "what happened?", Model: "claude-other"},
			reply:     `[{"type":"text","text":"ok"}]`,
			wantModel: "claude-other",
			want:      "ok",
		},
		{
			name:      "empty content",
			req:       Request{System: "be brief", Prompt: "what happened?"},
			reply:     `[]`,
			wantModel: "claude-default",
			wantErr:   ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got messagesBody
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"id":"msg_1","type":"message","role":"assistant","model":%q,"content":%s,"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`, got.Model, tt.reply)
			}))
			defer srv.Close()

			c := NewAnthropicCompleter(srv.URL+"/", "test", "claude-default", time.Second)
			answer, err := c.Complete(context.Background(), tt.req)

			assert.Equal(t, tt.wantModel, got.Model)
			assert.Equal(t, anthropicMaxTokens, got.MaxTokens)
			require.Len(t, got.System, 1)
			assert.Equal(t, "be brief", got.System[0].Text)
			require.Len(t, got.Messages, 1)
			assert.Equal(t, "user", got.Messages[0].Role)
			require.Len(t, got.Messages[0].Content, 1)
			assert.Equal(t, "what happened?", got.Messages[0].Content[0].Text)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)
		})
	}
}
