package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"ludice-backend/internal/model"
	"ludice-backend/internal/payment"
	"ludice-backend/internal/pkg/lock"
	"ludice-backend/internal/repository"
)

// withTx runs fn inside a transaction, committing on nil and rolling
// back on error.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GameService runs matchmaking and settlement over the lobby pool.
// Stakes are held in escrow: the bet leaves the balance when a player
// enters a lobby and comes back only as a payout or a refund.
type GameService struct {
	pool        *pgxpool.Pool
	accountRepo *repository.AccountRepository
	lobbyRepo   *repository.LobbyRepository
	txRepo      *repository.TransactionRepository
	gateway     *payment.IdempotentGateway
	userLock    *lock.KeyLock[int64]
	maxBet      int64
}

// NewGameService creates a new GameService instance.
func NewGameService(
	pool *pgxpool.Pool,
	accountRepo *repository.AccountRepository,
	lobbyRepo *repository.LobbyRepository,
	txRepo *repository.TransactionRepository,
	gateway *payment.IdempotentGateway,
	maxBet int64,
) *GameService {
	return &GameService{
		pool:        pool,
		accountRepo: accountRepo,
		lobbyRepo:   lobbyRepo,
		txRepo:      txRepo,
		gateway:     gateway,
		userLock:    lock.New[int64](),
		maxBet:      maxBet,
	}
}

func (s *GameService) validBet(bet int64) bool {
	return bet > 0 && bet <= s.maxBet
}

// escrow debits the stake inside tx and writes the ledger record.
func (s *GameService) escrow(ctx context.Context, tx pgx.Tx, userID int64, bet int64, lobbyID *string) error {
	if _, err := s.accountRepo.DebitTx(ctx, tx, userID, bet); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotRegistered
		}
		return err
	}
	return s.txRepo.Create(ctx, tx, userID, -bet, model.TxTypeBet, lobbyID, "stake escrowed")
}

// refund credits the stake back inside tx and writes the ledger record.
func (s *GameService) refund(ctx context.Context, tx pgx.Tx, userID int64, bet int64, lobbyID *string, reason string) error {
	if _, err := s.accountRepo.CreditTx(ctx, tx, userID, bet); err != nil {
		return err
	}
	return s.txRepo.Create(ctx, tx, userID, bet, model.TxTypeRefund, lobbyID, reason)
}

// StartGame enters matchmaking with the given stake. The stake is
// escrowed first; then the oldest open lobby with the same bet is
// joined, or a fresh lobby is opened when none is waiting.
func (s *GameService) StartGame(ctx context.Context, userID int64, bet int64) (*model.MatchResult, error) {
	if !s.validBet(bet) {
		return nil, ErrInvalidBet
	}

	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	var result model.MatchResult
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.MatchOpen(ctx, tx, bet, userID)
		if err == nil {
			if err := s.escrow(ctx, tx, userID, bet, &lobby.ID); err != nil {
				return err
			}
			result = model.MatchResult{LobbyID: lobby.ID, Matched: true}
			return nil
		}
		if !errors.Is(err, repository.ErrNoOpenLobby) {
			return err
		}

		lobby, err = s.lobbyRepo.ClaimEmpty(ctx, tx, bet, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNoEmptyLobby) {
				return ErrCapacityExhausted
			}
			return err
		}
		if err := s.escrow(ctx, tx, userID, bet, &lobby.ID); err != nil {
			return err
		}
		result = model.MatchResult{LobbyID: lobby.ID, Matched: false}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Int64("bet", bet).
		Str("lobby_id", result.LobbyID).
		Bool("matched", result.Matched).
		Msg("Matchmaking completed")
	return &result, nil
}

// CancelFind abandons an open lobby the caller is waiting in. The
// escrowed stake is refunded and the lobby returns to the empty pool.
func (s *GameService) CancelFind(ctx context.Context, userID int64, lobbyID string) error {
	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.GetForUpdate(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.State != model.LobbyOpen {
			return ErrInvalidState
		}
		if lobby.Player1ID == nil || *lobby.Player1ID != userID {
			return ErrNotParticipant
		}

		if err := s.refund(ctx, tx, userID, lobby.Bet, &lobby.ID, "matchmaking cancelled"); err != nil {
			return err
		}
		return s.lobbyRepo.Reset(ctx, tx, lobbyID, model.LobbyOpen)
	})
	if err != nil {
		return err
	}

	log.Info().Int64("user_id", userID).Str("lobby_id", lobbyID).Msg("Matchmaking cancelled")
	return nil
}

// JoinByLink seats the caller into a specific open lobby, typically
// shared as an invite link. The bet must equal the lobby's stake.
func (s *GameService) JoinByLink(ctx context.Context, lobbyID string, userID int64, bet int64) (*model.MatchResult, error) {
	if !s.validBet(bet) {
		return nil, ErrInvalidBet
	}

	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.lobbyRepo.JoinOpen(ctx, tx, lobbyID, userID, bet); err != nil {
			if errors.Is(err, repository.ErrLobbyState) {
				return ErrInvalidState
			}
			return err
		}
		return s.escrow(ctx, tx, userID, bet, &lobbyID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Str("lobby_id", lobbyID).Msg("Joined lobby by link")
	return &model.MatchResult{LobbyID: lobbyID, Matched: true}, nil
}

// SubmitResult records the caller's roll. Rolls overwrite until both
// are present; the submission that completes the pair also settles the
// lobby. Settlement is atomic: winner write, stats, payouts and the
// gateway call commit together or not at all. A gateway failure leaves
// the lobby active with both rolls recorded, so a retry settles it.
func (s *GameService) SubmitResult(ctx context.Context, userID int64, lobbyID string, roll int) (*model.SubmitOutcome, error) {
	if roll < 1 || roll > 6 {
		return nil, ErrInvalidRoll
	}

	// Record the roll in its own transaction so it survives a failed
	// settlement attempt.
	var recorded *model.Lobby
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.GetForUpdate(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.State != model.LobbyActive {
			return ErrInvalidState
		}
		if !lobby.HasPlayer(userID) {
			return ErrNotParticipant
		}

		recorded, err = s.lobbyRepo.SetRoll(ctx, tx, lobbyID, userID, roll)
		if err != nil {
			if errors.Is(err, repository.ErrLobbyState) {
				return ErrInvalidState
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !recorded.BothRolls() {
		return &model.SubmitOutcome{Settled: false}, nil
	}
	return s.settle(ctx, lobbyID)
}

// settle decides the winner and moves the pot. Runs in one row-locked
// transaction; a concurrent settler that commits first wins and this
// call returns its outcome.
func (s *GameService) settle(ctx context.Context, lobbyID string) (*model.SubmitOutcome, error) {
	var outcome model.SubmitOutcome
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.GetForUpdate(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.State == model.LobbySettled {
			outcome = settledOutcome(lobby)
			return nil
		}
		if lobby.State != model.LobbyActive || !lobby.BothRolls() {
			return ErrInvalidState
		}

		winnerID, draw := decideWinner(*lobby.Player1Roll, *lobby.Player2Roll, *lobby.Player1ID, *lobby.Player2ID)

		var winnerPtr *int64
		if !draw {
			winnerPtr = &winnerID
		}
		if _, err := s.lobbyRepo.SetWinner(ctx, tx, lobbyID, winnerPtr, draw); err != nil {
			if errors.Is(err, repository.ErrLobbyState) {
				return ErrInvalidState
			}
			return err
		}

		p1, p2 := *lobby.Player1ID, *lobby.Player2ID
		if _, err := s.accountRepo.RecordOutcomeTx(ctx, tx, p1, !draw && winnerID == p1); err != nil {
			return err
		}
		if _, err := s.accountRepo.RecordOutcomeTx(ctx, tx, p2, !draw && winnerID == p2); err != nil {
			return err
		}

		if draw {
			if err := s.refund(ctx, tx, p1, lobby.Bet, &lobby.ID, "draw"); err != nil {
				return err
			}
			if err := s.refund(ctx, tx, p2, lobby.Bet, &lobby.ID, "draw"); err != nil {
				return err
			}
		} else {
			pot := lobby.Pot()
			if _, err := s.accountRepo.CreditTx(ctx, tx, winnerID, pot); err != nil {
				return err
			}
			if err := s.txRepo.Create(ctx, tx, winnerID, pot, model.TxTypePayout, &lobby.ID, "pot won"); err != nil {
				return err
			}

			key := payment.Key(lobby.ID, winnerID)
			if _, err := s.gateway.PayOnce(ctx, key, winnerID, pot, "Dice pot payout"); err != nil {
				log.Warn().Err(err).Str("lobby_id", lobby.ID).Int64("winner_id", winnerID).
					Msg("Settlement gateway call failed, rolling back")
				return fmt.Errorf("%w: %v", ErrPaymentGateway, err)
			}
		}

		outcome = model.SubmitOutcome{Settled: true, WinnerID: winnerID, Draw: draw}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("lobby_id", lobbyID).
		Int64("winner_id", outcome.WinnerID).
		Bool("draw", outcome.Draw).
		Msg("Lobby settled")
	return &outcome, nil
}

// decideWinner picks the higher roll; equal rolls draw.
func decideWinner(roll1, roll2 int, player1, player2 int64) (winnerID int64, draw bool) {
	switch {
	case roll1 > roll2:
		return player1, false
	case roll2 > roll1:
		return player2, false
	default:
		return 0, true
	}
}

func settledOutcome(lobby *model.Lobby) model.SubmitOutcome {
	out := model.SubmitOutcome{Settled: true, Draw: lobby.Draw}
	if lobby.WinnerID != nil {
		out.WinnerID = *lobby.WinnerID
	}
	return out
}

// GetResult returns the settled view of a lobby.
// Returns ErrNotReady until the lobby is settled.
func (s *GameService) GetResult(ctx context.Context, lobbyID string) (*model.WinnerInfo, error) {
	lobby, err := s.lobbyRepo.GetByID(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if lobby.State != model.LobbySettled {
		return nil, ErrNotReady
	}

	info := &model.WinnerInfo{
		LobbyID: lobby.ID,
		Player1: *lobby.Player1ID,
		Roll1:   *lobby.Player1Roll,
		Player2: *lobby.Player2ID,
		Roll2:   *lobby.Player2Roll,
		Draw:    lobby.Draw,
	}
	if lobby.WinnerID != nil {
		info.WinnerID = *lobby.WinnerID
	}
	return info, nil
}

// LeaveAfterSettlement releases a settled lobby back to the empty pool.
// Only participants of the settled round may release it.
func (s *GameService) LeaveAfterSettlement(ctx context.Context, userID int64, lobbyID string) error {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		lobby, err := s.lobbyRepo.GetForUpdate(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.State != model.LobbySettled {
			return ErrInvalidState
		}
		if !lobby.HasPlayer(userID) {
			return ErrNotParticipant
		}
		return s.lobbyRepo.Reset(ctx, tx, lobbyID, model.LobbySettled)
	})
	if err != nil {
		return err
	}

	log.Info().Int64("user_id", userID).Str("lobby_id", lobbyID).Msg("Lobby released after settlement")
	return nil
}

// ActiveLobby returns the open or active lobby the user occupies.
func (s *GameService) ActiveLobby(ctx context.Context, userID int64) (*model.Lobby, error) {
	return s.lobbyRepo.FindByPlayer(ctx, userID)
}

// Lobby returns a lobby by ID.
func (s *GameService) Lobby(ctx context.Context, lobbyID string) (*model.Lobby, error) {
	return s.lobbyRepo.GetByID(ctx, lobbyID)
}
