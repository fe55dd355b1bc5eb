// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLobbyNotFound     = errors.New("lobby not found")
	ErrNoOpenLobby       = errors.New("no open lobby for this bet")
	ErrNoEmptyLobby      = errors.New("no empty lobby available")
	ErrLobbyState        = errors.New("lobby is not in the required state")
)

// Querier is the subset of pgxpool.Pool and pgx.Tx the repositories
// run their queries through. Settlement composes several repository
// writes inside one transaction by passing the pgx.Tx here.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
