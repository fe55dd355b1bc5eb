package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"ludice-backend/internal/model"
	"ludice-backend/internal/pkg/ratelimit"
	"ludice-backend/internal/repository"
)

// Sweeper reclaims stuck lobbies, refunding the escrowed stakes: open
// lobbies whose waiting player never found an opponent, and active
// lobbies where a matched player never rolled (a non-positive
// activeTimeout disables the latter). It also evicts idle rate-limiter
// entries on each pass.
type Sweeper struct {
	pool          *pgxpool.Pool
	accountRepo   *repository.AccountRepository
	lobbyRepo     *repository.LobbyRepository
	txRepo        *repository.TransactionRepository
	limiter       *ratelimit.Limiter
	openTimeout   time.Duration
	activeTimeout time.Duration
	interval      time.Duration
}

// NewSweeper creates a new Sweeper instance.
func NewSweeper(
	pool *pgxpool.Pool,
	accountRepo *repository.AccountRepository,
	lobbyRepo *repository.LobbyRepository,
	txRepo *repository.TransactionRepository,
	limiter *ratelimit.Limiter,
	openTimeout time.Duration,
	activeTimeout time.Duration,
	interval time.Duration,
) *Sweeper {
	return &Sweeper{
		pool:          pool,
		accountRepo:   accountRepo,
		lobbyRepo:     lobbyRepo,
		txRepo:        txRepo,
		limiter:       limiter,
		openTimeout:   openTimeout,
		activeTimeout: activeTimeout,
		interval:      interval,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("open_timeout", s.openTimeout).
		Dur("active_timeout", s.activeTimeout).
		Msg("Lobby sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Lobby sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Lobby sweep failed")
			} else if n > 0 {
				log.Info().Int("swept", n).Msg("Stale lobbies reclaimed")
			}
			s.limiter.Evict()
		}
	}
}

// SweepOnce reclaims all currently stale lobbies and returns how many
// were reset.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.openTimeout)
	stale, err := s.lobbyRepo.StaleOpen(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, lobby := range stale {
		if err := s.sweepOpenLobby(ctx, lobby.ID, cutoff); err != nil {
			log.Error().Err(err).Str("lobby_id", lobby.ID).Msg("Failed to sweep lobby")
			continue
		}
		swept++
	}

	if s.activeTimeout <= 0 {
		return swept, nil
	}

	activeCutoff := time.Now().Add(-s.activeTimeout)
	stalled, err := s.lobbyRepo.StaleActive(ctx, activeCutoff)
	if err != nil {
		return swept, err
	}
	for _, lobby := range stalled {
		if err := s.sweepActiveLobby(ctx, lobby.ID, activeCutoff); err != nil {
			log.Error().Err(err).Str("lobby_id", lobby.ID).Msg("Failed to sweep stalled lobby")
			continue
		}
		swept++
	}
	return swept, nil
}

// sweepOpenLobby resets one stale open lobby, rechecking its state
// under the row lock: the lobby may have matched or been cancelled
// since listing.
func (s *Sweeper) sweepOpenLobby(ctx context.Context, lobbyID string, cutoff time.Time) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.GetForUpdate(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.State != model.LobbyOpen || lobby.OpenedAt == nil || !lobby.OpenedAt.Before(cutoff) {
			return nil
		}

		if lobby.Player1ID != nil {
			if _, err := s.accountRepo.CreditTx(ctx, tx, *lobby.Player1ID, lobby.Bet); err != nil {
				return err
			}
			if err := s.txRepo.Create(ctx, tx, *lobby.Player1ID, lobby.Bet, model.TxTypeRefund, &lobby.ID, "opponent wait timed out"); err != nil {
				return err
			}
		}
		return s.lobbyRepo.Reset(ctx, tx, lobbyID, model.LobbyOpen)
	})
}

// sweepActiveLobby refunds both stakes of one stalled active lobby.
// A lobby that gained its missing roll since listing is left for
// settlement.
func (s *Sweeper) sweepActiveLobby(ctx context.Context, lobbyID string, cutoff time.Time) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.GetForUpdate(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.State != model.LobbyActive || lobby.BothRolls() || !lobby.UpdatedAt.Before(cutoff) {
			return nil
		}

		for _, player := range []*int64{lobby.Player1ID, lobby.Player2ID} {
			if player == nil {
				continue
			}
			if _, err := s.accountRepo.CreditTx(ctx, tx, *player, lobby.Bet); err != nil {
				return err
			}
			if err := s.txRepo.Create(ctx, tx, *player, lobby.Bet, model.TxTypeRefund, &lobby.ID, "match abandoned before both rolls"); err != nil {
				return err
			}
		}
		return s.lobbyRepo.Reset(ctx, tx, lobbyID, model.LobbyActive)
	})
}
