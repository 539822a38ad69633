package httpapi

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0x0BSoD/cryptonews/internal/cache"
	"github.com/0x0BSoD/cryptonews/internal/model"
)

type ArticleStore interface {
	Count(ctx context.Context) (int64, error)
	Page(ctx context.Context, filter model.ArticleFilter) ([]model.Article, int64, error)
	Latest(ctx context.Context, limit int) ([]model.Article, error)
	Tables(ctx context.Context) ([]string, error)
}

type ArticleHandler struct {
	repository ArticleStore
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewArticleHandler returns a handler serving the read endpoints. A nil
// cache disables response caching.
func NewArticleHandler(repository ArticleStore, c cache.Cache, cacheTTL time.Duration) *ArticleHandler {
	if c == nil {
		c = cache.Nop{}
	}
	return &ArticleHandler{repository: repository, cache: c, cacheTTL: cacheTTL}
}

func (h *ArticleHandler) GetCount(c *gin.Context) {
	const key = "articles:count"

	var res CountResponse
	if h.cached(c, key, &res) {
		c.JSON(http.StatusOK, res)
		return
	}

	total, err := h.repository.Count(c.Request.Context())
	if err != nil {
		slog.Error("error counting articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res = CountResponse{TotalArticles: total}
	h.store(c, key, res)
	c.JSON(http.StatusOK, res)
}

func (h *ArticleHandler) GetArticles(c *gin.Context) {
	page, err := queryInt(c, "page", 1, 1, math.MaxInt32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pageSize, err := queryInt(c, "page_size", model.DefaultPageSize, 1, model.MaxPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := model.ArticleFilter{
		Page:        page,
		PageSize:    pageSize,
		SourceNames: querySourceNames(c),
		TitleQuery:  strings.TrimSpace(c.Query("q")),
	}

	key := pageCacheKey(filter)

	var res PageResponse
	if h.cached(c, key, &res) {
		c.JSON(http.StatusOK, res)
		return
	}

	articles, total, err := h.repository.Page(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error fetching articles", "error", err, "page", page, "page_size", pageSize)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res = PageResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Articles: toArticleResponses(articles),
	}
	h.store(c, key, res)
	c.JSON(http.StatusOK, res)
}

func (h *ArticleHandler) GetLatest(c *gin.Context) {
	limit, err := queryInt(c, "limit", model.DefaultPageSize, 1, model.MaxPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	articles, err := h.repository.Latest(c.Request.Context(), limit)
	if err != nil {
		slog.Error("error fetching latest articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, toArticleResponses(articles))
}

func (h *ArticleHandler) GetTables(c *gin.Context) {
	tables, err := h.repository.Tables(c.Request.Context())
	if err != nil {
		slog.Error("error listing tables", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if tables == nil {
		tables = []string{}
	}

	c.JSON(http.StatusOK, TablesResponse{Tables: tables})
}

func (h *ArticleHandler) GetHealth(c *gin.Context) {
	if _, err := h.repository.Count(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

func (h *ArticleHandler) cached(c *gin.Context, key string, dst any) bool {
	found, err := h.cache.Get(c.Request.Context(), key, dst)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	return found
}

func (h *ArticleHandler) store(c *gin.Context, key string, v any) {
	if h.cacheTTL <= 0 {
		return
	}
	if err := h.cache.Set(c.Request.Context(), key, v, h.cacheTTL); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// pageCacheKey encodes filter with url.Values so that separators inside
// source names or the title query cannot make two filters share a key.
// Source names are OR-combined, so their order does not matter.
func pageCacheKey(filter model.ArticleFilter) string {
	sources := slices.Clone(filter.SourceNames)
	slices.Sort(sources)

	return "articles:page:" + url.Values{
		"page":        {strconv.Itoa(filter.Page)},
		"page_size":   {strconv.Itoa(filter.PageSize)},
		"source_name": sources,
		"q":           {filter.TitleQuery},
	}.Encode()
}
