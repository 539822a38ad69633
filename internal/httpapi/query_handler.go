package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/0x0BSoD/cryptonews/internal/answer"
	"github.com/0x0BSoD/cryptonews/internal/sqlguard"
	"github.com/0x0BSoD/cryptonews/internal/storage"
)

type Executor interface {
	Execute(ctx context.Context, req answer.ExecuteRequest) (*answer.ExecuteResponse, error)
}

type Searcher interface {
	Search(ctx context.Context, req answer.SearchRequest) (*answer.SearchResponse, error)
}

type QueryHandler struct {
	executor Executor
	searcher Searcher
}

func NewQueryHandler(executor Executor, searcher Searcher) *QueryHandler {
	return &QueryHandler{executor: executor, searcher: searcher}
}

func (h *QueryHandler) ExecuteSQL(c *gin.Context) {
	var req answer.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.executor.Execute(c.Request.Context(), req)
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			slog.Error("error executing query", "error", err, "sql_query", req.SQLQuery)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *QueryHandler) Search(c *gin.Context) {
	var req answer.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.searcher.Search(c.Request.Context(), req)
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			slog.Error("error searching articles", "error", err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, answer.ErrPromptRequired), errors.Is(err, sqlguard.ErrRejected):
		return http.StatusBadRequest
	case errors.Is(err, answer.ErrSearchUnavailable), errors.Is(err, storage.ErrVectorUnsupported):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
