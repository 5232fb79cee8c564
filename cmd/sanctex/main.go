package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/config"
	dbRedis "github.com/sanctex-io/sanctex/internal/db/redis"
	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/embedding"
	"github.com/sanctex-io/sanctex/internal/index"
	logpkg "github.com/sanctex-io/sanctex/internal/logger"
	"github.com/sanctex-io/sanctex/internal/metrics"
	"github.com/sanctex-io/sanctex/internal/repository/watchlist"
	chiTransport "github.com/sanctex-io/sanctex/internal/transport/chi"
	openaiEmb "github.com/sanctex-io/sanctex/internal/transport/openai"
	escalateuc "github.com/sanctex-io/sanctex/internal/usecase/escalate"
	fusionuc "github.com/sanctex-io/sanctex/internal/usecase/fusion"
	healthuc "github.com/sanctex-io/sanctex/internal/usecase/health"
	mirroruc "github.com/sanctex-io/sanctex/internal/usecase/mirror"
	screenuc "github.com/sanctex-io/sanctex/internal/usecase/screen"
	tiersuc "github.com/sanctex-io/sanctex/internal/usecase/tiers"
	"github.com/sanctex-io/sanctex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting sanctex screening server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// The backend being down at boot is not fatal: the escalation
	// controller routes around it through the local fallback path.
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Warn("Backend not ready, starting degraded", zap.Error(err))
	} else {
		logger.Info("Connected to database")
	}

	// Register screening metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	repo := watchlist.New(store, cfg.Database.IndexName, cfg.Database.KeyPrefix)

	embedCache := embedding.NewCache(cfg.Cache.EmbeddingSize, cfg.Cache.EmbeddingTTL(), metrics.CacheTotal)

	// Pass nil interface (not typed nil pointer!) when no real
	// embedding backend is configured; the vectorizer then degrades
	// to the deterministic pseudo-embedding.
	var embedder *openaiEmb.Embedder
	var backend domain.Embedder
	if cfg.Embedding.Provider == "openai" {
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimension,
			Provider:   cfg.Embedding.Provider,
			Logger:     logger,
		})
		backend = embedder
		logger.Info("Embedding backend configured",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimension),
		)
	}
	vectorizer := embedding.NewVectorizer(backend, cfg.Embedding.Dimension, embedCache, logger)

	// Local indexes backing the degraded-mode fallback path.
	patterns := index.NewPatternIndex()
	vectors := index.NewVectorIndex(cfg.Embedding.Dimension)

	exact := tiersuc.NewExact(repo, logger)
	fuzzy := tiersuc.NewFuzzy(repo, tiersuc.FuzzyParams{
		Distance:      cfg.Fuzzy.Distance,
		Timeout:       cfg.Fuzzy.FuzzyTimeout(),
		BackendWeight: cfg.Fuzzy.BackendWeight,
		EditWeight:    cfg.Fuzzy.EditWeight,
		OverlapWeight: cfg.Fuzzy.OverlapWeight,
		Penalty:       cfg.Fuzzy.Penalty,
		PenaltyCutoff: cfg.Fuzzy.PenaltyCutoff,
	}, logger)
	vector := tiersuc.NewVector(repo, vectorizer, cfg.Search.VectorThreshold, logger)
	fallback := tiersuc.NewFallback(patterns, vectors, vectorizer,
		cfg.Search.FallbackThreshold, cfg.Search.VectorFallbackThreshold, logger)

	weights, boosts := fusionuc.LoadWeights(cfg.Search.WeightsPath, logger)
	fuser := fusionuc.New(weights, boosts)

	controller := escalateuc.New(exact, fuzzy, vector, fallback, fuser, store, escalateuc.Thresholds{
		FuzzyHighConfidence: cfg.Search.FuzzyHighConfidence,
		FuzzyMinimum:        cfg.Search.FuzzyMinimum,
		ACHardFloor:         cfg.Search.ACHardFloor,
		VectorOutperform:    cfg.Search.VectorOutperform,
	}, logger)

	var embChecker healthuc.EmbeddingChecker
	if embedder != nil {
		embChecker = embedder
	}
	healthSvc := healthuc.New(store, embChecker, patterns)

	screenSvc, err := screenuc.New(controller, fallback, embedCache, healthSvc, screenuc.Config{
		RequestsPerMinute:   cfg.Search.RequestsPerMinute,
		ResultCacheSize:     cfg.Cache.ResultSize,
		ResultCacheTTL:      cfg.Cache.ResultTTL(),
		DefaultThreshold:    cfg.Search.DefaultThreshold,
		EscalationThreshold: cfg.Search.EscalationThreshold,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create screening service", zap.Error(err))
	}

	mirrorSvc := mirroruc.New(patterns, vectors, vectorizer, logger)

	server := chiTransport.NewServer(screenSvc, mirrorSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

	logger.Info("Server stopped gracefully")
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
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

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
