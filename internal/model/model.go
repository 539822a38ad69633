// Package model defines the data structures used across cryptonews: Source (an ingest feed), Item (a raw feed entry) and Article (a row of the articles table), plus the filter used to page through articles.
package model

import "time"

type Source struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	FeedURL   string    `db:"feed_url"`
	SiteURL   string    `db:"site_url"`
	Insecure  bool      `db:"insecure"`
	CreatedAt time.Time `db:"created_at"`
}

type Item struct {
	Title      string
	Categories []string
	Link       string
	Author     string
	ImageURL   string
	Date       time.Time
	Summary    string
	SourceName string
	SourceURL  string
}

// Article mirrors a row of the articles table.
type Article struct {
	ID           string
	Slug         string
	Title        string
	Content      string
	CleanContent string
	PublishedAt  *time.Time
	AuthorName   string
	Category     string
	SourceName   string
	SourceURL    string
	ImageURL     string
	ArticleURL   string
	Tags         []string
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ArticleFilter struct {
	Page        int
	PageSize    int
	SourceNames []string
	TitleQuery  string
	Since       time.Time
}

// Offset returns the row offset of the filter's page.
func (f ArticleFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
