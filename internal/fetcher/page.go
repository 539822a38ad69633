package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const pageTimeout = 20 * time.Second

// PageLoader downloads an article page for items whose feed entry carries no body.
type PageLoader interface {
	Load(ctx context.Context, url string) (string, error)
}

type httpPageLoader struct {
	client *resty.Client
}

func newHTTPPageLoader() *httpPageLoader {
	return &httpPageLoader{
		client: resty.New().
			SetTimeout(pageTimeout).
			SetRetryCount(1).
			SetHeader("User-Agent", "cryptonews-fetcher/1.0").
			SetHeader("Accept", "text/html,application/xhtml+xml"),
	}
}

func (l *httpPageLoader) Load(ctx context.Context, url string) (string, error) {
	resp, err := l.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get %s: status %d", url, resp.StatusCode())
	}
	return resp.String(), nil
}
