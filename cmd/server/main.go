package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reviewpulse/credits-server/internal/config"
	"github.com/reviewpulse/credits-server/internal/credits"
	"github.com/reviewpulse/credits-server/internal/database"
	"github.com/reviewpulse/credits-server/internal/executor"
	"github.com/reviewpulse/credits-server/internal/handler"
	"github.com/reviewpulse/credits-server/internal/jobs"
	"github.com/reviewpulse/credits-server/internal/middleware"
	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/notify"
	"github.com/reviewpulse/credits-server/internal/provider"
	"github.com/reviewpulse/credits-server/internal/redis"
	"github.com/reviewpulse/credits-server/internal/repository"
	"github.com/reviewpulse/credits-server/internal/runner"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	balanceRepo := repository.NewBalanceRepository(db.DB)
	transactionRepo := repository.NewTransactionRepository(db.DB)
	scheduleRepo := repository.NewScheduleRepository(db.DB)
	groupRepo := repository.NewKeywordGroupRepository(db.DB)
	llmKeywordRepo := repository.NewLLMKeywordRepository(db.DB)
	profileRepo := repository.NewProfileRepository(db.DB)
	resultRepo := repository.NewResultRepository(db.DB)

	ledger := credits.NewLedger(db, balanceRepo, transactionRepo)

	rankProvider := provider.NewRankProvider(cfg.RankAPIURL, cfg.RankAPIKey)
	llmRegistry := provider.NewRegistry(configuredLLMProviders(cfg)...)

	rankExecutor := executor.NewRankExecutor(rankProvider, resultRepo, cfg.ProviderDelay())
	llmExecutor := executor.NewLLMExecutor(llmRegistry, resultRepo, cfg.ProviderDelay())

	var notifier notify.Dispatcher = notify.NoopDispatcher{}
	if cfg.NotifyURL != "" {
		notifier = notify.NewWebhookDispatcher(cfg.NotifyURL, cfg.NotifyToken)
	}

	passRunner := runner.New(
		scheduleRepo, groupRepo, llmKeywordRepo, profileRepo,
		ledger, rankExecutor, llmExecutor, notifier,
		cfg.ScheduleDelay(), cfg.CreditWarningThrottle(),
	)

	cronAuth := middleware.NewSecretAuthMiddleware(cfg.CronSecret, "cron")
	serviceAuth := middleware.NewSecretAuthMiddleware(cfg.ServiceToken, "service")

	cronHandler := handler.NewCronHandler(passRunner, func(feature model.FeatureType) handler.PassLock {
		return runner.NewPassLock(redisClient, feature, config.CronPassLockTTL)
	})
	creditsHandler := handler.NewCreditsHandler(ledger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/internal/cron", func(r chi.Router) {
		r.Use(cronAuth.Handler)
		r.Mount("/", cronHandler.Routes())
	})

	r.Route("/v1/accounts/{accountID}/credits", func(r chi.Router) {
		r.Use(serviceAuth.Handler)
		r.Mount("/", creditsHandler.Routes())
	})

	if cfg.SchedulerEnabled {
		ticker := jobs.NewSchedulerTicker(passRunner, func(feature model.FeatureType) jobs.PassLock {
			return runner.NewPassLock(redisClient, feature, config.CronPassLockTTL)
		}, cfg.SchedulerInterval())
		ticker.Start()
		defer ticker.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// configuredLLMProviders builds a chat client for every model family with an
// API key present. Families without a key are simply absent from the registry;
// subjects that reference them surface a per-unit error at check time.
func configuredLLMProviders(cfg *config.Config) []provider.LLMProvider {
	var providers []provider.LLMProvider
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, provider.NewChatProvider(provider.ChatClientConfig{
			ID:      model.ProviderOpenAI,
			BaseURL: "https://api.openai.com/v1",
			APIKey:  cfg.OpenAIAPIKey,
			Model:   "gpt-4o-mini",
		}))
	}
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, provider.NewChatProvider(provider.ChatClientConfig{
			ID:      model.ProviderAnthropic,
			BaseURL: "https://api.anthropic.com/v1",
			APIKey:  cfg.AnthropicAPIKey,
			Model:   "claude-sonnet-4-20250514",
		}))
	}
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, provider.NewChatProvider(provider.ChatClientConfig{
			ID:      model.ProviderGemini,
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
			APIKey:  cfg.GeminiAPIKey,
			Model:   "gemini-2.0-flash",
		}))
	}
	if cfg.PerplexityAPIKey != "" {
		providers = append(providers, provider.NewChatProvider(provider.ChatClientConfig{
			ID:      model.ProviderPerplexity,
			BaseURL: "https://api.perplexity.ai",
			APIKey:  cfg.PerplexityAPIKey,
			Model:   "sonar",
		}))
	}
	return providers
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
