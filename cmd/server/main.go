package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/agent"
	"github.com/alialshehriar/bithrah-app-sub003/internal/api"
	"github.com/alialshehriar/bithrah-app-sub003/internal/config"
	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/negotiation"
	"github.com/alialshehriar/bithrah-app-sub003/internal/notify"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
	"github.com/alialshehriar/bithrah-app-sub003/internal/walletclient"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Pick the primary store: Postgres in production, SQLite as the
	// single-node alternative, in-memory as the last-ditch dev fallback.
	var db store.DataStore
	switch {
	case cfg.DatabaseURL != "":
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	case cfg.SQLitePath != "":
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	default:
		db = store.NewMemoryStore()
		logger.Warn().Msg("no DATABASE_URL or SQLITE_PATH set, using in-memory store")
	}

	// Initialize Redis store (optional: rate limiting and notifications)
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	var notifier notify.Notifier
	if redisStore != nil {
		notifier = notify.NewRedisNotifier(redisStore, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	// Wallet ledger
	var wallet negotiation.WalletLedger
	if cfg.WalletBaseURL != "" {
		wallet = walletclient.New(cfg.WalletBaseURL)
	} else {
		logger.Warn().Msg("no WALLET_BASE_URL set, using noop wallet ledger")
		wallet = &walletclient.Noop{Logger: logger}
	}

	// Counterparty agent
	var counterparty negotiation.CounterpartyAgent
	if cfg.GeminiAPIKey != "" {
		gemini, err := agent.NewGeminiAgent(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini client init failed")
		}
		counterparty = gemini
		logger.Info().Msg("counterparty agent: gemini")
	} else {
		counterparty = agent.NewStubAgent()
		logger.Warn().Msg("no GEMINI_API_KEY set, using scripted stub agent")
	}

	// Wire the negotiation engine
	rates := negotiation.SettlementRates{
		Commission: make(map[models.CommissionTier]decimal.Decimal, len(cfg.CommissionRates)),
		Referral:   cfg.ReferralRates,
	}
	for tier, rate := range cfg.CommissionRates {
		rates.Commission[models.CommissionTier(tier)] = rate
	}
	settler := negotiation.NewSettlementEngine(db, wallet, rates, cfg.PlatformAccountID, logger)
	orch := negotiation.NewOrchestrator(
		db,
		negotiation.NewAccessGate(db),
		negotiation.NewContentModerator(),
		negotiation.NewDepositLedger(wallet, logger),
		counterparty,
		settler,
		notifier,
		negotiation.Config{
			Window:       cfg.NegotiationWindow,
			AgentTimeout: cfg.AgentTimeout,
			Bounds: negotiation.PolicyBounds{
				MinEquityPct:          cfg.MinEquityPct,
				MaxEquityPct:          cfg.MaxEquityPct,
				MinInvestmentFraction: cfg.MinInvestmentFraction,
			},
		},
		logger,
	)

	// Background expiry sweep: lazy expiry on access is the primary
	// mechanism, the sweep catches sessions nobody touches.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := orch.ExpireDue(sweepCtx)
				if err != nil {
					logger.Error().Err(err).Msg("expiry sweep failed")
				} else if n > 0 {
					logger.Info().Int("expired", n).Msg("expiry sweep")
				}
			}
		}
	}()

	// Create router
	router := api.NewRouter(cfg, logger, orch, db, redisStore)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // agent turns can take a while
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting negotiation engine")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	stopSweep()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
