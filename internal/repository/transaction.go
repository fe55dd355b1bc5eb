package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ludice-backend/internal/model"
)

// TransactionRepository records balance changes for auditing.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create records a balance change. Use through the same transaction as
// the balance write so the ledger never drifts from the balances.
func (r *TransactionRepository) Create(ctx context.Context, q Querier, userID int64, amount int64, txType string, lobbyID *string, description string) error {
	const query = `
		INSERT INTO transactions (user_id, amount, type, lobby_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	var desc *string
	if description != "" {
		desc = &description
	}
	if _, err := q.Exec(ctx, query, userID, amount, txType, lobbyID, desc); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByUserID retrieves the most recent transactions for a user.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, lobby_id, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.LobbyID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// SumByType returns the net amount of all transactions of the given
// type for a user. Used by admin stats.
func (r *TransactionRepository) SumByType(ctx context.Context, userID int64, txType string) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND type = $2
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, userID, txType).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}
