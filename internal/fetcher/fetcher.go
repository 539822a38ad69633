package fetcher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/cryptonews/internal/llm"
	"github.com/0x0BSoD/cryptonews/internal/model"
	"github.com/0x0BSoD/cryptonews/internal/seen"
	"github.com/0x0BSoD/cryptonews/internal/source"
	"github.com/0x0BSoD/cryptonews/internal/textclean"
)

// embedBatchSize is the number of articles sent to the embedder at once.
const embedBatchSize = 30

type ArticleStorage interface {
	Store(ctx context.Context, article model.Article) (bool, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
}

type SourceProvider interface {
	Sources(ctx context.Context) ([]model.Source, error)
}

type Source interface {
	ID() int64
	Name() string
	Fetch(ctx context.Context) ([]model.Item, error)
}

type Reporter interface {
	Notifyf(format string, args ...any)
}

type Options struct {
	FetchInterval  time.Duration
	PastPeriod     time.Duration
	FilterKeywords []string

	// optional
	Embedder llm.Embedder
	Seen     *seen.Store
	SeenTTL  time.Duration
	Reporter Reporter
	// Pages defaults to a plain HTTP loader.
	Pages PageLoader
}

type Fetcher struct {
	articles ArticleStorage
	sources  SourceProvider
	embedder llm.Embedder
	seen     *seen.Store
	reporter Reporter
	pages    PageLoader

	fetchInterval  time.Duration
	pastPeriod     time.Duration
	seenTTL        time.Duration
	filterKeywords []string

	newSource func(model.Source) Source
	now       func() time.Time
}

func New(articles ArticleStorage, sources SourceProvider, opts Options) *Fetcher {
	if opts.Pages == nil {
		opts.Pages = newHTTPPageLoader()
	}

	return &Fetcher{
		articles:      articles,
		sources:       sources,
		embedder:      opts.Embedder,
		seen:          opts.Seen,
		reporter:      opts.Reporter,
		pages:         opts.Pages,
		fetchInterval: opts.FetchInterval,
		pastPeriod:    opts.PastPeriod,
		seenTTL:       opts.SeenTTL,
		filterKeywords: lo.Compact(lo.Map(opts.FilterKeywords, func(k string, _ int) string {
			return strings.ToLower(strings.TrimSpace(k))
		})),
		newSource: func(m model.Source) Source { return source.NewRSSSourceFromModel(m) },
		now:       time.Now,
	}
}

func (f *Fetcher) Start(ctx context.Context) error {
	log.Printf("[INFO] fetcher started, interval %s", f.fetchInterval)

	ticker := time.NewTicker(f.fetchInterval)
	defer ticker.Stop()

	if err := f.Fetch(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Fetch(ctx); err != nil {
				return err
			}
		}
	}
}

func (f *Fetcher) Fetch(ctx context.Context) error {
	sources, err := f.sources.Sources(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)

		go func(src Source) {
			defer wg.Done()

			items, err := src.Fetch(ctx)
			if err != nil {
				log.Printf("[ERROR] failed to fetch items for source %d: %v", src.ID(), err)
				f.report("failed to fetch source %s: %v", src.Name(), err)
				return
			}
			if err := f.processItems(ctx, src, items); err != nil {
				log.Printf("[ERROR] failed to process items for source %d: %v", src.ID(), err)
				f.report("failed to store articles from %s: %v", src.Name(), err)
				return
			}
		}(f.newSource(src))
	}
	wg.Wait()

	if f.seenTTL > 0 {
		if n, err := f.seen.Prune(f.seenTTL); err != nil {
			log.Printf("[WARN] failed to prune seen links: %v", err)
		} else if n > 0 {
			log.Printf("[INFO] pruned %d seen links", n)
		}
	}

	return nil
}

func (f *Fetcher) itemMustSkipped(item model.Item) bool {
	categories := lo.Uniq(lo.Map(item.Categories, func(c string, _ int) string {
		return strings.ToLower(c)
	}))
	title := strings.ToLower(item.Title)

	for _, keyword := range f.filterKeywords {
		if lo.Contains(categories, keyword) || strings.Contains(title, keyword) {
			return true
		}
	}

	return false
}

func (f *Fetcher) tooOld(item model.Item) bool {
	if f.pastPeriod <= 0 || item.Date.IsZero() {
		return false
	}
	return item.Date.Before(f.now().Add(-f.pastPeriod))
}

func (f *Fetcher) processItems(ctx context.Context, src Source, items []model.Item) error {
	var (
		fresh  []model.Article
		marked []string
	)

	for _, item := range items {
		if item.Link == "" || f.itemMustSkipped(item) || f.tooOld(item) {
			continue
		}

		if ok, err := f.seen.Seen(item.Link); err != nil {
			log.Printf("[WARN] seen lookup failed for %s: %v", item.Link, err)
		} else if ok {
			continue
		}

		article := f.buildArticle(ctx, item)
		inserted, err := f.articles.Store(ctx, article)
		if err != nil {
			return err
		}

		marked = append(marked, item.Link)
		if inserted {
			fresh = append(fresh, article)
		}
	}

	if err := f.seen.Mark(marked...); err != nil {
		log.Printf("[WARN] failed to mark %d links as seen: %v", len(marked), err)
	}

	if len(fresh) > 0 {
		log.Printf("[INFO] stored %d new articles from %s", len(fresh), src.Name())
		f.embed(ctx, fresh)
	}

	return nil
}

// buildArticle converts a feed item into an articles row. Items without a
// body get their text from the linked page.
func (f *Fetcher) buildArticle(ctx context.Context, item model.Item) model.Article {
	published := item.Date
	if published.IsZero() {
		published = f.now()
	}
	published = published.UTC()

	html := item.Summary
	if html == "" && f.pages != nil {
		page, err := f.pages.Load(ctx, item.Link)
		if err != nil {
			log.Printf("[WARN] failed to load article page: %v", err)
		}
		html = page
	}
	content := textclean.PlainText(html, item.Link)

	return model.Article{
		ID:           articleID(item.Link),
		Slug:         textclean.Slug(item.Link),
		Title:        item.Title,
		Content:      content,
		CleanContent: textclean.Clean(content),
		PublishedAt:  &published,
		AuthorName:   item.Author,
		Category:     lo.FirstOrEmpty(item.Categories),
		SourceName:   item.SourceName,
		SourceURL:    item.SourceURL,
		ImageURL:     lo.CoalesceOrEmpty(item.ImageURL, textclean.FirstImage(html, item.Link)),
		ArticleURL:   item.Link,
		Tags:         lo.Uniq(lo.Compact(item.Categories)),
	}
}

// embed computes embeddings for freshly stored articles. Failures only
// leave the embeddings column empty.
func (f *Fetcher) embed(ctx context.Context, articles []model.Article) {
	if f.embedder == nil {
		return
	}

	for _, batch := range lo.Chunk(articles, embedBatchSize) {
		texts := lo.Map(batch, func(a model.Article, _ int) string {
			return a.Title + "\n\n" + a.Content
		})

		vectors, err := f.embedder.Embed(ctx, texts)
		if err != nil {
			log.Printf("[ERROR] failed to embed %d articles: %v", len(batch), err)
			continue
		}

		for i, v := range vectors {
			if i >= len(batch) {
				break
			}
			if err := f.articles.SetEmbedding(ctx, batch[i].ID, v); err != nil {
				log.Printf("[ERROR] failed to store embedding for %s: %v", batch[i].ID, err)
			}
		}
	}
}

func (f *Fetcher) report(format string, args ...any) {
	if f.reporter != nil {
		f.reporter.Notifyf(format, args...)
	}
}

func articleID(link string) string {
	sum := sha1.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}
