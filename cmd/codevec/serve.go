package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/config"
	dbRedis "github.com/embedhq/codevec/internal/db/redis"
	"github.com/embedhq/codevec/internal/domain"
	logpkg "github.com/embedhq/codevec/internal/logger"
	"github.com/embedhq/codevec/internal/metrics"
	"github.com/embedhq/codevec/internal/queue"
	"github.com/embedhq/codevec/internal/repository/embcache"
	"github.com/embedhq/codevec/internal/repository/registry"
	chiTransport "github.com/embedhq/codevec/internal/transport/chi"
	"github.com/embedhq/codevec/internal/transport/github"
	openaiEmb "github.com/embedhq/codevec/internal/transport/openai"
	"github.com/embedhq/codevec/internal/transport/qdrant"
	embeddinguc "github.com/embedhq/codevec/internal/usecase/embedding"
	healthuc "github.com/embedhq/codevec/internal/usecase/health"
	"github.com/embedhq/codevec/internal/usecase/ingest"
	"github.com/embedhq/codevec/internal/usecase/vectorstore"
	"github.com/embedhq/codevec/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and ingestion workers",
	Run:   runServe,
}

func runServe(_ *cobra.Command, _ []string) {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting codevec",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_store_url", cfg.VectorStore.URL),
		zap.Strings("queue_brokers", cfg.Queue.Brokers),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterVectorStoreMetrics()
	metrics.RegisterIngestMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterHTTPMetrics()

	// Vector store client and collection manager
	store, err := qdrant.NewClient(&qdrant.Config{
		URL:     cfg.VectorStore.URL,
		APIKey:  cfg.VectorStore.APIKey,
		Timeout: time.Duration(cfg.VectorStore.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store client", zap.Error(err))
	}

	manager, err := vectorstore.New(store, domain.CodeSegmentSchema(), logger)
	if err != nil {
		logger.Fatal("Invalid collection schema", zap.Error(err))
	}

	ctx := context.Background()
	if err := manager.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	// Repository registry
	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		logger.Fatal("Failed to open repository registry", zap.Error(err))
	}
	defer func() { _ = reg.Close() }()

	// Embedding cache store (optional)
	var cache *dbRedis.Store
	if cfg.Cache.Enabled {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()

		if err := cache.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache")
	}

	base, embedder := buildEmbedder(cfg, cache, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", cfg.Cache.Enabled),
	)

	// Change event queue: Kafka when brokers are configured, otherwise an
	// in-process channel shared by the webhook receiver and the workers.
	var (
		publisher chiTransport.Publisher
		source    queue.Source
	)
	if len(cfg.Queue.Brokers) > 0 {
		brokers := strings.Join(cfg.Queue.Brokers, ",")
		kafkaPub := queue.NewPublisher(&queue.PublisherConfig{
			Brokers: brokers,
			Topic:   cfg.Queue.Topic,
			Logger:  logger,
		})
		defer func() { _ = kafkaPub.Close() }()
		publisher = kafkaPub
		source = queue.NewKafkaSource(&queue.SourceConfig{
			Brokers: brokers,
			Topic:   cfg.Queue.Topic,
			GroupID: cfg.Queue.Group,
			Logger:  logger,
		})
	} else {
		ch := queue.NewChannelSource()
		publisher = ch
		source = ch
		logger.Warn("No queue brokers configured, using in-process queue")
	}

	// Ingestion pipeline
	gh := github.NewClient(&github.Config{BaseURL: cfg.GitHub.BaseURL, Logger: logger})
	ingestSvc := ingest.New(source, reg, gh, embedder, manager, logger).
		WithWorkers(cfg.Ingest.Workers).
		WithMaxFileBytes(cfg.Ingest.MaxFileSizeKB * 1024)

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := ingestSvc.Run(ctx); err != nil {
			logger.Error("Ingestion stopped with error", zap.Error(err))
		}
	}()

	// Health service. Pass nil interface (not typed nil pointer!) when the
	// cache is not configured.
	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	healthSvc := healthuc.New(store, cachePinger, base)

	// Create chi server
	server := chiTransport.NewServer(reg, publisher, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Stop the change event source after the server: no handler can publish
	// anymore, and the workers drain what is already queued.
	if err := source.Close(); err != nil {
		logger.Error("Error closing change event source", zap.Error(err))
	}
	<-ingestDone

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented -> Cached.
// The base client is returned separately so the health service can probe the
// provider directly, bypassing the cache.
func buildEmbedder(cfg config.Config, cache *dbRedis.Store, logger *zap.Logger) (*openaiEmb.Embedder, domain.Embedder) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	var embedder domain.Embedder = embeddinguc.NewInstrumentedEmbedder(
		base, "openai", cfg.Embedding.Model, logger,
	)

	// Cache outermost: hits skip the provider and its logging.
	if cache != nil {
		embedder = embcache.New(embedder, cache, metrics.EmbeddingCacheTotal, logger).
			WithTTL(time.Duration(cfg.Cache.TTLHours) * time.Hour)
	}

	return base, embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
