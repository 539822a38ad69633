// Package source reads news feeds and turns their entries into model.Item values.
package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"

	"github.com/0x0BSoD/cryptonews/internal/model"
)

const (
	fetchTimeout = 30 * time.Second
	probeTimeout = 15 * time.Second
)

// contextTransport injects a context into every outgoing request so that
// context cancellation and deadlines propagate through the rss library.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

type RSSSource struct {
	URL        string
	SiteURL    string
	SourceID   int64
	SourceName string
	Insecure   bool
}

func NewRSSSourceFromModel(m model.Source) RSSSource {
	return RSSSource{
		URL:        m.FeedURL,
		SiteURL:    m.SiteURL,
		SourceID:   m.ID,
		SourceName: m.Name,
		Insecure:   m.Insecure,
	}
}

func (s RSSSource) Fetch(ctx context.Context) ([]model.Item, error) {
	feed, err := loadFeed(ctx, s.URL, s.Insecure, fetchTimeout)
	if err != nil {
		return nil, err
	}

	siteURL := lo.CoalesceOrEmpty(s.SiteURL, feed.Link, s.URL)

	return lo.Map(feed.Items, func(item *rss.Item, _ int) model.Item {
		return model.Item{
			Title:      strings.TrimSpace(item.Title),
			Categories: item.Categories,
			Link:       strings.TrimSpace(item.Link),
			Author:     feed.Author,
			ImageURL:   enclosureImage(item),
			Date:       item.Date,
			SourceName: s.SourceName,
			SourceURL:  siteURL,
			Summary:    itemText(item),
		}
	}), nil
}

// Probe fetches url once and reports whether it parses as a feed. It returns
// the feed title so callers can use it as a default source name.
func Probe(ctx context.Context, url string, insecure bool) (string, error) {
	feed, err := loadFeed(ctx, url, insecure, probeTimeout)
	if err != nil {
		return "", fmt.Errorf("fetch feed %s: %w", url, err)
	}
	return strings.TrimSpace(feed.Title), nil
}

// itemText returns the richest available text for an item.
// Content (full body) is preferred over Summary (short excerpt).
func itemText(item *rss.Item) string {
	if c := strings.TrimSpace(item.Content); c != "" {
		return c
	}
	return strings.TrimSpace(item.Summary)
}

func enclosureImage(item *rss.Item) string {
	enc, ok := lo.Find(item.Enclosures, func(e *rss.Enclosure) bool {
		return e != nil && e.URL != "" && strings.HasPrefix(e.Type, "image/")
	})
	if !ok {
		return ""
	}
	return enc.URL
}

func loadFeed(ctx context.Context, url string, insecure bool, timeout time.Duration) (*rss.Feed, error) {
	base := http.DefaultTransport
	if insecure {
		base = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}
	client := &http.Client{
		Transport: contextTransport{ctx: ctx, base: base},
		Timeout:   timeout,
	}
	return rss.FetchByClient(url, client)
}

func (s RSSSource) ID() int64 {
	return s.SourceID
}

func (s RSSSource) Name() string {
	return s.SourceName
}
