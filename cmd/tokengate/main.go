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

	"github.com/kailas-cloud/tokengate/internal/config"
	dbRedis "github.com/kailas-cloud/tokengate/internal/db/redis"
	"github.com/kailas-cloud/tokengate/internal/domain"
	logpkg "github.com/kailas-cloud/tokengate/internal/logger"
	"github.com/kailas-cloud/tokengate/internal/metrics"
	"github.com/kailas-cloud/tokengate/internal/registry"
	credentialrepo "github.com/kailas-cloud/tokengate/internal/repository/credential"
	quotarepo "github.com/kailas-cloud/tokengate/internal/repository/quota"
	sharedcredrepo "github.com/kailas-cloud/tokengate/internal/repository/sharedcred"
	chiTransport "github.com/kailas-cloud/tokengate/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/tokengate/internal/transport/openai"
	completionuc "github.com/kailas-cloud/tokengate/internal/usecase/completion"
	credentialuc "github.com/kailas-cloud/tokengate/internal/usecase/credential"
	healthuc "github.com/kailas-cloud/tokengate/internal/usecase/health"
	quotauc "github.com/kailas-cloud/tokengate/internal/usecase/quota"
	sharedcreduc "github.com/kailas-cloud/tokengate/internal/usecase/sharedcred"
	"github.com/kailas-cloud/tokengate/internal/version"
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

	logger.Info("Starting tokengate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("registry", cfg.Registry.BaseURL),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register completion metrics explicitly (no init())
	metrics.RegisterCompletionMetrics()

	registryClient := registry.NewClient(cfg.Registry.BaseURL, time.Duration(cfg.Registry.TimeoutSec)*time.Second)

	policies := cfg.Policies()
	clock := domain.SystemClock()

	// Repositories
	credRepo := credentialrepo.New(store, cfg.Storage.KeyPrefix)
	sharedRepo := sharedcredrepo.New(store, cfg.Storage.KeyPrefix, sharedcredrepo.DefaultCacheTTL)
	quotaStore := quotarepo.New(store, cfg.Storage.KeyPrefix, quotarepo.DefaultTTL)

	// Shared-credential mutations are gated on the configured admin list.
	admins := make(map[string]struct{}, len(cfg.Auth.Admins))
	for _, id := range cfg.Auth.Admins {
		admins[id] = struct{}{}
	}
	authorizer := sharedcreduc.AuthorizerFunc(func(p domain.Principal) bool {
		_, ok := admins[p.ID]
		return ok
	})

	loc, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		logger.Fatal("Invalid quota timezone", zap.String("timezone", cfg.Quota.Timezone), zap.Error(err))
	}

	// Use case services
	credSvc := credentialuc.New(credRepo, registryClient, policies, clock, logger)
	sharedSvc := sharedcreduc.New(sharedRepo, registryClient, authorizer, policies, clock, logger)
	ledger := quotauc.NewLedger(policies, quotaStore, clock, loc, logger)

	endpoints := make(map[domain.Provider]openaiTransport.Endpoint, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		endpoints[domain.Provider(name)] = openaiTransport.Endpoint{
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
		}
	}
	completer := openaiTransport.NewCompleter(endpoints, logger)

	completionSvc := completionuc.New(credSvc, sharedSvc, ledger, completer, logger)
	healthSvc := healthuc.New(store, registryClient)

	// HTTP server
	server := chiTransport.NewServer(credSvc, sharedSvc, ledger, completionSvc, healthSvc, logger)

	apiKeys := make([]chiTransport.APIKey, len(cfg.Auth.APIKeys))
	for i, k := range cfg.Auth.APIKeys {
		apiKeys[i] = chiTransport.APIKey{Key: k.Key, UserID: k.UserID, Email: k.Email}
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(apiKeys))
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
