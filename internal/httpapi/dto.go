package httpapi

import (
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/cryptonews/internal/model"
)

type ArticleResponse struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	CleanContent string   `json:"clean_content"`
	PublishedAt  *string  `json:"publishedAt"`
	AuthorName   string   `json:"authorName"`
	Category     string   `json:"category"`
	SourceName   string   `json:"sourceName"`
	SourceURL    string   `json:"sourceUrl"`
	ImageURL     string   `json:"imageUrl"`
	ArticleURL   string   `json:"articleUrl"`
	Tags         []string `json:"tags"`
	CreatedAt    *string  `json:"createdAt"`
	UpdatedAt    *string  `json:"updatedAt"`
}

type CountResponse struct {
	TotalArticles int64 `json:"total_articles"`
}

type PageResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Articles []ArticleResponse `json:"articles"`
}

type TablesResponse struct {
	Tables []string `json:"tables"`
}

type SourceRequest struct {
	Name     string `json:"name"`
	FeedURL  string `json:"feed_url" binding:"required,url"`
	SiteURL  string `json:"site_url"`
	Insecure bool   `json:"insecure"`
}

type SourceResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FeedURL   string `json:"feed_url"`
	SiteURL   string `json:"site_url"`
	Insecure  bool   `json:"insecure"`
	CreatedAt string `json:"created_at"`
}

func toArticleResponse(a model.Article) ArticleResponse {
	return ArticleResponse{
		ID:           a.ID,
		Slug:         a.Slug,
		Title:        a.Title,
		Content:      a.Content,
		CleanContent: a.CleanContent,
		PublishedAt:  formatTime(a.PublishedAt),
		AuthorName:   a.AuthorName,
		Category:     a.Category,
		SourceName:   a.SourceName,
		SourceURL:    a.SourceURL,
		ImageURL:     a.ImageURL,
		ArticleURL:   a.ArticleURL,
		Tags:         lo.Ternary(a.Tags == nil, []string{}, a.Tags),
		CreatedAt:    formatTime(a.CreatedAt),
		UpdatedAt:    formatTime(a.UpdatedAt),
	}
}

func toArticleResponses(articles []model.Article) []ArticleResponse {
	return lo.Map(articles, func(a model.Article, _ int) ArticleResponse { return toArticleResponse(a) })
}

func toSourceResponse(s model.Source) SourceResponse {
	return SourceResponse{
		ID:        s.ID,
		Name:      s.Name,
		FeedURL:   s.FeedURL,
		SiteURL:   s.SiteURL,
		Insecure:  s.Insecure,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
