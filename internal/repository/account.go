package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ludice-backend/internal/model"
)

const accountColumns = "user_id, username, balance, wins, total_games, created_at, updated_at"

// AccountRepository handles bettor account persistence.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.UserID,
		&a.Username,
		&a.Balance,
		&a.Wins,
		&a.TotalGames,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create registers a new account with a zero balance and empty stats.
// Returns ErrAccountExists if the user is already registered.
func (r *AccountRepository) Create(ctx context.Context, userID int64, username string) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (user_id, username, balance, wins, total_games, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, NOW(), NOW())
		RETURNING ` + accountColumns

	account, err := scanAccount(r.pool.QueryRow(ctx, query, userID, username))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetByID retrieves an account by user ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, userID int64) (*model.Account, error) {
	return r.getByID(ctx, r.pool, userID)
}

func (r *AccountRepository) getByID(ctx context.Context, q Querier, userID int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`

	account, err := scanAccount(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// Exists checks if an account with the given user ID exists.
func (r *AccountRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

// Credit adds amount to the account's balance.
func (r *AccountRepository) Credit(ctx context.Context, userID int64, amount int64) (*model.Account, error) {
	return r.CreditTx(ctx, r.pool, userID, amount)
}

// CreditTx adds amount to the account's balance through q, which may
// be a transaction.
func (r *AccountRepository) CreditTx(ctx context.Context, q Querier, userID int64, amount int64) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(q.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	return account, nil
}

// Debit subtracts amount from the account's balance. The UPDATE
// predicate guards the balance so it can never go negative; a
// would-be negative withdrawal returns ErrInsufficientFunds.
func (r *AccountRepository) Debit(ctx context.Context, userID int64, amount int64) (*model.Account, error) {
	return r.DebitTx(ctx, r.pool, userID, amount)
}

// DebitTx subtracts amount from the account's balance through q.
func (r *AccountRepository) DebitTx(ctx context.Context, q Querier, userID int64, amount int64) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING ` + accountColumns

	account, err := scanAccount(q.QueryRow(ctx, query, userID, amount))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	// No row matched: either the account is missing or the balance is
	// short. Look the account up to tell the two apart.
	if _, lookupErr := r.getByID(ctx, q, userID); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, ErrInsufficientFunds
}

// RecordOutcome bumps the account's game counters after settlement:
// total_games always, wins only when won. Draws count a game for both
// players without a win.
func (r *AccountRepository) RecordOutcome(ctx context.Context, userID int64, won bool) (*model.Account, error) {
	return r.RecordOutcomeTx(ctx, r.pool, userID, won)
}

// RecordOutcomeTx bumps the game counters through q.
func (r *AccountRepository) RecordOutcomeTx(ctx context.Context, q Querier, userID int64, won bool) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET total_games = total_games + 1,
		    wins = wins + CASE WHEN $2 THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(q.QueryRow(ctx, query, userID, won))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}
	return account, nil
}

// TopByGames retrieves the top N accounts by total games played.
func (r *AccountRepository) TopByGames(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, username, total_games, wins,
		       CASE WHEN total_games = 0 THEN 0
		            ELSE wins::float8 / total_games * 100 END AS win_rate
		FROM accounts
		ORDER BY total_games DESC, user_id
		LIMIT $1
	`
	return r.queryLeaderboard(ctx, query, limit)
}

// TopByWinRate retrieves the top N accounts by win percentage.
// Accounts with no games rank last (rate 0).
func (r *AccountRepository) TopByWinRate(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, username, total_games, wins,
		       CASE WHEN total_games = 0 THEN 0
		            ELSE wins::float8 / total_games * 100 END AS win_rate
		FROM accounts
		ORDER BY win_rate DESC, total_games DESC, user_id
		LIMIT $1
	`
	return r.queryLeaderboard(ctx, query, limit)
}

func (r *AccountRepository) queryLeaderboard(ctx context.Context, query string, limit int) ([]*model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.TotalGames, &e.Wins, &e.WinRate); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}
