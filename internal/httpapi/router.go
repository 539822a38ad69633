// Package httpapi exposes the article store and the question answering
// services over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Articles *ArticleHandler
	Query    *QueryHandler
	// Sources is optional; the feed admin routes are not mounted without it.
	Sources *SourceHandler
}

func NewRouter(h Handlers, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
		corsCfg.AllowCredentials = true
	}
	slog.Info("cors configured", "origins", allowedOrigins)
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Articles.GetHealth)
	r.GET("/tables", h.Articles.GetTables)
	r.GET("/articles/count", h.Articles.GetCount)
	r.GET("/articles/latest", h.Articles.GetLatest)
	r.GET("/articles", h.Articles.GetArticles)
	r.POST("/articles/search", h.Query.Search)
	r.POST("/execute-sql", h.Query.ExecuteSQL)

	if h.Sources != nil {
		r.GET("/sources", h.Sources.GetSources)
		r.POST("/sources", h.Sources.AddSource)
		r.DELETE("/sources/:id", h.Sources.DeleteSource)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
