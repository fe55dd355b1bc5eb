// Package main is the entry point for the Ludice dice-betting backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ludice-backend/internal/bot"
	"ludice-backend/internal/config"
	"ludice-backend/internal/payment"
	"ludice-backend/internal/pkg/db"
	"ludice-backend/internal/pkg/ratelimit"
	"ludice-backend/internal/repository"
	"ludice-backend/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize Redis for payment idempotency receipts
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	lobbyRepo := repository.NewLobbyRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)

	// Seed the reusable lobby pool
	seeded, err := lobbyRepo.Seed(ctx, cfg.Lobby.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed lobby pool")
	}
	log.Info().Int("pool_size", cfg.Lobby.PoolSize).Int("seeded", seeded).Msg("Lobby pool ready")

	// Initialize the payment gateway behind the idempotency wrapper
	gateway, err := newGateway(&cfg.Payment)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize payment gateway")
	}
	log.Info().Str("provider", gateway.Name()).Msg("Payment gateway ready")

	receiptStore := payment.NewRedisReceiptStore(redisClient, 0)
	idempotentGateway := payment.NewIdempotentGateway(gateway, receiptStore)

	// Initialize the per-user rate limiter shared by API and sweeper
	limiter := ratelimit.New(cfg.Security.MinRequestInterval, cfg.Security.RateEntryTTL)

	// Initialize services
	accountService := service.NewAccountService(dbPool.Pool, accountRepo, txRepo, gateway)
	gameService := service.NewGameService(
		dbPool.Pool,
		accountRepo,
		lobbyRepo,
		txRepo,
		idempotentGateway,
		cfg.Lobby.MaxBet,
	)
	rankingService := service.NewRankingService(accountRepo)

	// Start the stale-lobby sweeper
	sweeper := service.NewSweeper(
		dbPool.Pool,
		accountRepo,
		lobbyRepo,
		txRepo,
		limiter,
		cfg.Lobby.OpenTimeout,
		cfg.Lobby.ActiveTimeout,
		cfg.Lobby.SweepInterval,
	)
	go sweeper.Run(ctx)

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		GameService:    gameService,
		RankingService: rankingService,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	cancel()
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// newGateway builds the configured payment gateway implementation.
func newGateway(cfg *config.PaymentConfig) (payment.Gateway, error) {
	switch cfg.Provider {
	case "stars":
		if cfg.StarsToken == "" {
			return nil, fmt.Errorf("payment.stars_token is required for the stars provider")
		}
		return payment.NewStarsGateway(cfg.StarsToken), nil
	case "ton":
		if cfg.TonEndpoint == "" || cfg.TonWallet == "" {
			return nil, fmt.Errorf("payment.ton_endpoint and payment.ton_wallet are required for the ton provider")
		}
		return payment.NewTONGateway(cfg.TonEndpoint, cfg.TonAPIKey, cfg.TonWallet, cfg.CoinsPerTon), nil
	case "noop":
		return payment.NewNoopGateway(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			wins BIGINT NOT NULL DEFAULT 0,
			total_games BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_total_games ON accounts(total_games DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: Create lobbies table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lobbies (
			id UUID PRIMARY KEY,
			state VARCHAR(16) NOT NULL DEFAULT 'empty',
			bet BIGINT NOT NULL DEFAULT 0,
			player1_id BIGINT,
			player2_id BIGINT,
			player1_roll INT,
			player2_roll INT,
			winner_id BIGINT,
			draw BOOLEAN NOT NULL DEFAULT FALSE,
			opened_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_lobbies_state_bet ON lobbies(state, bet);
		CREATE INDEX IF NOT EXISTS idx_lobbies_opened_at ON lobbies(opened_at) WHERE state = 'open';
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: lobbies table created")

	// Migration 3: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			lobby_id UUID,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: transactions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
