package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/0x0BSoD/cryptonews/internal/model"
	"github.com/0x0BSoD/cryptonews/internal/source"
	"github.com/0x0BSoD/cryptonews/internal/storage"
)

type SourceStore interface {
	Sources(ctx context.Context) ([]model.Source, error)
	Add(ctx context.Context, source model.Source) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// ProbeFunc checks that url serves a parseable feed and returns its title.
type ProbeFunc func(ctx context.Context, url string, insecure bool) (string, error)

type SourceHandler struct {
	repository SourceStore
	probe      ProbeFunc
}

func NewSourceHandler(repository SourceStore) *SourceHandler {
	return &SourceHandler{repository: repository, probe: source.Probe}
}

func (h *SourceHandler) GetSources(c *gin.Context) {
	sources, err := h.repository.Sources(c.Request.Context())
	if err != nil {
		slog.Error("error fetching sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := make([]SourceResponse, 0, len(sources))
	for _, s := range sources {
		res = append(res, toSourceResponse(s))
	}

	c.JSON(http.StatusOK, res)
}

func (h *SourceHandler) AddSource(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	title, err := h.probe(c.Request.Context(), req.FeedURL, req.Insecure)
	if err != nil {
		slog.Warn("feed probe failed", "feed_url", req.FeedURL, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not read a feed at feed_url"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = title
	}
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	id, err := h.repository.Add(c.Request.Context(), model.Source{
		Name:     name,
		FeedURL:  req.FeedURL,
		SiteURL:  strings.TrimSpace(req.SiteURL),
		Insecure: req.Insecure,
	})
	if err != nil {
		slog.Error("error adding source", "error", err, "feed_url", req.FeedURL)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "name": name})
}

func (h *SourceHandler) DeleteSource(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source id"})
		return
	}

	if err := h.repository.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		slog.Error("error deleting source", "error", err, "source_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Status(http.StatusNoContent)
}
