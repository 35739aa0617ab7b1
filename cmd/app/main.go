// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-chat-client/internal/config"
	"ai-chat-client/internal/domain/ports/adapter"
	aiAdapters "ai-chat-client/internal/infra/adapters/ai"
	pg "ai-chat-client/internal/infra/db/postgres"
	"ai-chat-client/internal/infra/logging"
	"ai-chat-client/internal/infra/metrics"
	red "ai-chat-client/internal/infra/redis"
	"ai-chat-client/internal/infra/web"
	"ai-chat-client/internal/usecase"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI fallback, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	summaryCache := red.NewSummaryCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	convRepo := pg.NewConversationRepoCacheDecorator(pg.NewConversationRepo(pool), summaryCache)
	txManager := pg.NewTxManager(pool)

	// ---- AI Adapter (OpenAI -> compatible gateway -> Gemini -> noop in dev) ----
	var ai adapter.AIServiceAdapter
	provider := ""
	switch {
	case cfg.AI.OpenAIKey != "":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		provider = "openai"
	case cfg.AI.CompatKey != "":
		ai, err = aiAdapters.NewCompatOpenAIAdapter(cfg.AI.CompatKey, cfg.AI.DefaultModel, cfg.AI.CompatBaseURL)
		provider = "compat"
	case cfg.AI.GeminiKey != "":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxTokens)
		provider = "gemini"
	case cfg.Runtime.Dev:
		ai = aiAdapters.NewNoopAIAdapter()
		provider = "noop"
	default:
		logger.Fatal().Msgf("no AI provider configured: set ai.openai_key, ai.compat_key or ai.gemini_key in %s", *cfgPath)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("provider", provider).Msg("ai adapter init failed")
	}
	logger.Info().Str("provider", provider).Str("model", cfg.AI.DefaultModel).Msg("ai adapter ready")

	ai = aiAdapters.NewMeteredAI(aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit), provider)

	// ---- Use cases ----
	params := adapter.ChatParams{Temperature: cfg.AI.Temperature, MaxTokens: cfg.AI.MaxTokens}
	registry := usecase.NewSessionRegistry(convRepo, txManager, ai, cfg.AI.DefaultModel, params, logger)

	// ---- Web ----
	auth := web.NewAuthManager(cfg.Server.JWTSecret, cfg.Server.SecureCookie, cfg.Server.CookieDomain, cfg.Server.TokenTTL)
	srv := web.NewServer(registry, auth, rateLimiter, ai, cfg.AI.DefaultModel, params, cfg.Server.RateLimitPerMinute, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}
