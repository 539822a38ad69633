// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/0x0BSoD/cryptonews/internal/answer"
	"github.com/0x0BSoD/cryptonews/internal/cache"
	"github.com/0x0BSoD/cryptonews/internal/config"
	"github.com/0x0BSoD/cryptonews/internal/fetcher"
	"github.com/0x0BSoD/cryptonews/internal/httpapi"
	"github.com/0x0BSoD/cryptonews/internal/llm"
	"github.com/0x0BSoD/cryptonews/internal/reporter"
	"github.com/0x0BSoD/cryptonews/internal/seen"
	"github.com/0x0BSoD/cryptonews/internal/sqlguard"
	"github.com/0x0BSoD/cryptonews/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Get()
	setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
	if err != nil {
		log.Printf("[ERROR] failed to connect to db: %v", err)
		return
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		log.Printf("[ERROR] failed to migrate db: %v", err)
		return
	}

	var (
		articleStorage = storage.NewArticleStorage(db)
		sourceStorage  = storage.NewSourceStorage(db)
	)

	completer, err := llm.New(llm.Options{
		Type:    cfg.AIType,
		BaseURL: cfg.AIBaseURL,
		Key:     cfg.AIKey,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
	})
	if err != nil {
		log.Printf("[ERROR] failed to create llm client: %v", err)
		return
	}
	log.Printf("[INFO] using %s completer (model: %s)", cfg.AIType, cfg.AIModel)

	embedder := newEmbedder(cfg)
	if embedder == nil {
		log.Printf("[INFO] no embedding key configured, semantic search disabled")
	}

	var responseCache cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("[WARN] redis unavailable, caching disabled: %v", err)
		} else {
			defer rc.Close()
			responseCache = rc
		}
	}

	var (
		guard    = sqlguard.New(cfg.QueryAllowedTables...)
		executor = answer.NewExecutor(
			articleStorage,
			guard,
			completer,
			cfg.Prompt(),
			storage.QueryOptions{MaxRows: cfg.QueryMaxRows, Timeout: cfg.QueryTimeout},
		)
		searcher = answer.NewSearcher(articleStorage, embedder, completer, cfg.Prompt())
	)

	if cfg.IngestEnabled {
		stopIngest, err := startIngest(ctx, cfg, articleStorage, sourceStorage, embedder)
		if err != nil {
			log.Printf("[ERROR] failed to start ingest: %v", err)
			return
		}
		defer stopIngest()
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.Handlers{
		Articles: httpapi.NewArticleHandler(articleStorage, responseCache, cfg.CacheTTL),
		Query:    httpapi.NewQueryHandler(executor, searcher),
		Sources:  httpapi.NewSourceHandler(sourceStorage),
	}, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[INFO] http server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] failed to run http server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] failed to shut down http server: %v", err)
		return
	}
	log.Printf("[INFO] http server stopped")
}

func startIngest(
	ctx context.Context,
	cfg config.Config,
	articles *storage.ArticlePostgresStorage,
	sources *storage.SourcePostgresStorage,
	embedder llm.Embedder,
) (func(), error) {
	var seenStore *seen.Store
	if cfg.SeenDBPath != "" {
		s, err := seen.Open(cfg.SeenDBPath)
		if err != nil {
			return nil, err
		}
		seenStore = s
	}

	rep, err := reporter.FromToken(cfg.TelegramBotToken, cfg.TelegramAdminChatID)
	if err != nil {
		log.Printf("[WARN] error reporting disabled: %v", err)
	}

	f := fetcher.New(articles, sources, fetcher.Options{
		FetchInterval:  cfg.FetchInterval,
		PastPeriod:     cfg.PastPeriod,
		FilterKeywords: cfg.FilterKeywords,
		Embedder:       embedder,
		Seen:           seenStore,
		SeenTTL:        cfg.SeenTTL,
		Reporter:       rep,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := f.Start(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[ERROR] failed to run fetcher: %v", err)
				return
			}

			log.Printf("[INFO] fetcher stopped")
		}
	}()

	return func() {
		<-done
		if err := seenStore.Close(); err != nil {
			log.Printf("[WARN] failed to close seen db: %v", err)
		}
	}, nil
}

// newEmbedder returns an OpenAI embedder when a key is available. The chat
// key doubles as the embedding key for the openai backend.
func newEmbedder(cfg config.Config) llm.Embedder {
	key, baseURL := cfg.EmbeddingKey, ""
	if strings.EqualFold(cfg.AIType, llm.TypeOpenAI) {
		baseURL = cfg.AIBaseURL
		if key == "" {
			key = cfg.AIKey
		}
	}
	if key == "" {
		return nil
	}
	return llm.NewOpenAIEmbedder(baseURL, key, cfg.EmbeddingModel, cfg.AITimeout)
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
