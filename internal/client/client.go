// Package client is a Go client for the cryptonews HTTP API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/0x0BSoD/cryptonews/internal/answer"
	"github.com/0x0BSoD/cryptonews/internal/httpapi"
)

const defaultTimeout = 2 * time.Minute

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// ArticlesQuery selects a page of GET /articles.
type ArticlesQuery struct {
	Page        int
	PageSize    int
	SourceNames []string
	Query       string
}

func (c *Client) Count(ctx context.Context) (int64, error) {
	var out httpapi.CountResponse
	if err := c.get(ctx, "/articles/count", nil, &out); err != nil {
		return 0, err
	}
	return out.TotalArticles, nil
}

func (c *Client) Articles(ctx context.Context, q ArticlesQuery) (*httpapi.PageResponse, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}
	for _, s := range q.SourceNames {
		params.Add("source_name", s)
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	}

	var out httpapi.PageResponse
	if err := c.get(ctx, "/articles", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Latest(ctx context.Context, limit int) ([]httpapi.ArticleResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var out []httpapi.ArticleResponse
	if err := c.get(ctx, "/articles/latest", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tables(ctx context.Context) ([]string, error) {
	var out httpapi.TablesResponse
	if err := c.get(ctx, "/tables", nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

func (c *Client) ExecuteSQL(ctx context.Context, req answer.ExecuteRequest) (*answer.ExecuteResponse, error) {
	var out answer.ExecuteResponse
	if err := c.post(ctx, "/execute-sql", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Search(ctx context.Context, req answer.SearchRequest) (*answer.SearchResponse, error) {
	var out answer.SearchResponse
	if err := c.post(ctx, "/articles/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Get(path)
	return checkResponse(resp, err, path)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out).
		SetError(&errorBody{}).
		Post(path)
	return checkResponse(resp, err, path)
}

func checkResponse(resp *resty.Response, err error, path string) error {
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Error
	}
	return apiErr
}
