package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ludice-backend/internal/model"
)

const lobbyColumns = `id, state, bet, player1_id, player2_id, player1_roll, player2_roll,
	winner_id, draw, opened_at, created_at, updated_at`

// LobbyRepository handles the reusable lobby pool. Lobbies are seeded
// once and cycle through empty -> open -> active -> settled -> empty;
// they are never deleted.
type LobbyRepository struct {
	pool *pgxpool.Pool
}

// NewLobbyRepository creates a new LobbyRepository instance.
func NewLobbyRepository(pool *pgxpool.Pool) *LobbyRepository {
	return &LobbyRepository{pool: pool}
}

func scanLobby(row pgx.Row) (*model.Lobby, error) {
	var l model.Lobby
	err := row.Scan(
		&l.ID,
		&l.State,
		&l.Bet,
		&l.Player1ID,
		&l.Player2ID,
		&l.Player1Roll,
		&l.Player2Roll,
		&l.WinnerID,
		&l.Draw,
		&l.OpenedAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Seed grows the lobby pool to at least target empty-capable slots.
// Existing lobbies are kept; only the shortfall is inserted.
func (r *LobbyRepository) Seed(ctx context.Context, target int) (int, error) {
	var current int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lobbies`).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to count lobbies: %w", err)
	}

	created := 0
	for i := current; i < target; i++ {
		const query = `
			INSERT INTO lobbies (id, state, bet, draw, created_at, updated_at)
			VALUES ($1, 'empty', 0, FALSE, NOW(), NOW())
		`
		if _, err := r.pool.Exec(ctx, query, uuid.NewString()); err != nil {
			return created, fmt.Errorf("failed to seed lobby: %w", err)
		}
		created++
	}
	return created, nil
}

// GetByID retrieves a lobby by ID.
// Returns ErrLobbyNotFound if the lobby does not exist.
func (r *LobbyRepository) GetByID(ctx context.Context, lobbyID string) (*model.Lobby, error) {
	const query = `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`

	lobby, err := scanLobby(r.pool.QueryRow(ctx, query, lobbyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLobbyNotFound
		}
		return nil, fmt.Errorf("failed to get lobby: %w", err)
	}
	return lobby, nil
}

// GetForUpdate locks the lobby row for the duration of the transaction
// and returns its current state. All settlement writes go through this
// lock so result recording and the winner write are linearized.
func (r *LobbyRepository) GetForUpdate(ctx context.Context, q Querier, lobbyID string) (*model.Lobby, error) {
	const query = `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1 FOR UPDATE`

	lobby, err := scanLobby(q.QueryRow(ctx, query, lobbyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLobbyNotFound
		}
		return nil, fmt.Errorf("failed to lock lobby: %w", err)
	}
	return lobby, nil
}

// MatchOpen pairs userID into the oldest open lobby with the given bet.
// The row is claimed with FOR UPDATE SKIP LOCKED so concurrent
// matchmaking calls for the same bet linearize instead of double
// claiming one lobby. Self-matching is excluded by the predicate.
// Returns ErrNoOpenLobby when no candidate exists.
func (r *LobbyRepository) MatchOpen(ctx context.Context, q Querier, bet int64, userID int64) (*model.Lobby, error) {
	const query = `
		UPDATE lobbies
		SET player2_id = $2, state = 'active', updated_at = NOW()
		WHERE id = (
			SELECT id FROM lobbies
			WHERE state = 'open' AND bet = $1 AND player1_id <> $2
			ORDER BY opened_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + lobbyColumns

	lobby, err := scanLobby(q.QueryRow(ctx, query, bet, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoOpenLobby
		}
		return nil, fmt.Errorf("failed to match open lobby: %w", err)
	}
	return lobby, nil
}

// ClaimEmpty opens the oldest empty lobby with the given bet and
// userID as the waiting player.
// Returns ErrNoEmptyLobby when the pool is exhausted.
func (r *LobbyRepository) ClaimEmpty(ctx context.Context, q Querier, bet int64, userID int64) (*model.Lobby, error) {
	const query = `
		UPDATE lobbies
		SET bet = $1, player1_id = $2, state = 'open', opened_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM lobbies
			WHERE state = 'empty'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + lobbyColumns

	lobby, err := scanLobby(q.QueryRow(ctx, query, bet, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoEmptyLobby
		}
		return nil, fmt.Errorf("failed to claim empty lobby: %w", err)
	}
	return lobby, nil
}

// JoinOpen seats userID as the second player of a specific open lobby.
// The bet must match the lobby's stake and the caller must not already
// hold the first seat. Returns ErrLobbyState when the lobby is not
// open, the bet mismatches or the caller would self-match.
func (r *LobbyRepository) JoinOpen(ctx context.Context, q Querier, lobbyID string, userID int64, bet int64) (*model.Lobby, error) {
	if _, err := r.GetForUpdate(ctx, q, lobbyID); err != nil {
		return nil, err
	}

	const query = `
		UPDATE lobbies
		SET player2_id = $2, state = 'active', updated_at = NOW()
		WHERE id = $1 AND state = 'open' AND bet = $3 AND player1_id <> $2
		RETURNING ` + lobbyColumns

	lobby, err := scanLobby(q.QueryRow(ctx, query, lobbyID, userID, bet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLobbyState
		}
		return nil, fmt.Errorf("failed to join lobby: %w", err)
	}
	return lobby, nil
}

// SetRoll records userID's roll in their seat. Rolls may be
// resubmitted until settlement; the last write wins.
// Returns ErrLobbyState if the lobby is not active or the user holds
// no seat in it.
func (r *LobbyRepository) SetRoll(ctx context.Context, q Querier, lobbyID string, userID int64, roll int) (*model.Lobby, error) {
	const query = `
		UPDATE lobbies
		SET player1_roll = CASE WHEN player1_id = $2 THEN $3 ELSE player1_roll END,
		    player2_roll = CASE WHEN player2_id = $2 THEN $3 ELSE player2_roll END,
		    updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND (player1_id = $2 OR player2_id = $2)
		RETURNING ` + lobbyColumns

	lobby, err := scanLobby(q.QueryRow(ctx, query, lobbyID, userID, roll))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLobbyState
		}
		return nil, fmt.Errorf("failed to set roll: %w", err)
	}
	return lobby, nil
}

// SetWinner transitions an active lobby to settled. The predicate
// requires winner_id to still be unset and draw false, so the winner
// write happens exactly once per active cycle.
// Returns ErrLobbyState if the lobby is not active or already settled.
func (r *LobbyRepository) SetWinner(ctx context.Context, q Querier, lobbyID string, winnerID *int64, draw bool) (*model.Lobby, error) {
	const query = `
		UPDATE lobbies
		SET winner_id = $2, draw = $3, state = 'settled', updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND winner_id IS NULL AND NOT draw
		RETURNING ` + lobbyColumns

	lobby, err := scanLobby(q.QueryRow(ctx, query, lobbyID, winnerID, draw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLobbyState
		}
		return nil, fmt.Errorf("failed to set winner: %w", err)
	}
	return lobby, nil
}

// Reset clears a lobby back to empty so the pool slot can be reused.
// The lobby must currently be in the given state.
func (r *LobbyRepository) Reset(ctx context.Context, q Querier, lobbyID string, from model.LobbyState) error {
	const query = `
		UPDATE lobbies
		SET state = 'empty', bet = 0, player1_id = NULL, player2_id = NULL,
		    player1_roll = NULL, player2_roll = NULL,
		    winner_id = NULL, draw = FALSE, opened_at = NULL, updated_at = NOW()
		WHERE id = $1 AND state = $2
	`

	tag, err := q.Exec(ctx, query, lobbyID, string(from))
	if err != nil {
		return fmt.Errorf("failed to reset lobby: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLobbyState
	}
	return nil
}

// FindByPlayer returns the open or active lobby the user currently
// occupies, if any.
func (r *LobbyRepository) FindByPlayer(ctx context.Context, userID int64) (*model.Lobby, error) {
	const query = `
		SELECT ` + lobbyColumns + `
		FROM lobbies
		WHERE state IN ('open', 'active') AND (player1_id = $1 OR player2_id = $1)
		ORDER BY updated_at DESC
		LIMIT 1
	`

	lobby, err := scanLobby(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLobbyNotFound
		}
		return nil, fmt.Errorf("failed to find lobby by player: %w", err)
	}
	return lobby, nil
}

// StaleOpen lists open lobbies whose opponent wait started before the
// cutoff. The sweeper resets these and refunds the waiting player.
func (r *LobbyRepository) StaleOpen(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error) {
	const query = `
		SELECT ` + lobbyColumns + `
		FROM lobbies
		WHERE state = 'open' AND opened_at < $1
		ORDER BY opened_at
	`
	return r.listStale(ctx, query, cutoff)
}

// StaleActive lists active lobbies idle since before the cutoff that
// are still missing at least one roll. Fully rolled lobbies are
// settled by a submission retry, never swept.
func (r *LobbyRepository) StaleActive(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error) {
	const query = `
		SELECT ` + lobbyColumns + `
		FROM lobbies
		WHERE state = 'active' AND updated_at < $1
			AND (player1_roll IS NULL OR player2_roll IS NULL)
		ORDER BY updated_at
	`
	return r.listStale(ctx, query, cutoff)
}

func (r *LobbyRepository) listStale(ctx context.Context, query string, cutoff time.Time) ([]*model.Lobby, error) {
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale lobbies: %w", err)
	}
	defer rows.Close()

	var lobbies []*model.Lobby
	for rows.Next() {
		lobby, err := scanLobby(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lobby: %w", err)
		}
		lobbies = append(lobbies, lobby)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lobbies: %w", err)
	}
	return lobbies, nil
}

// CountByState returns the number of lobbies in the given state.
func (r *LobbyRepository) CountByState(ctx context.Context, state model.LobbyState) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lobbies WHERE state = $1`, string(state)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count lobbies: %w", err)
	}
	return count, nil
}
