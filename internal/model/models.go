// Package model defines the data models for the dice-betting backend.
package model

import "time"

// Account represents a registered bettor.
// Balance is kept non-negative at rest: withdrawals that would go below
// zero are rejected, never clamped.
type Account struct {
	UserID     int64     `db:"user_id"`
	Username   string    `db:"username"`
	Balance    int64     `db:"balance"`
	Wins       int       `db:"wins"`
	TotalGames int       `db:"total_games"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// WinRate returns the account's win percentage: wins/totalGames*100,
// or 0 when no games have been played.
func (a *Account) WinRate() float64 {
	if a.TotalGames == 0 {
		return 0
	}
	return float64(a.Wins) / float64(a.TotalGames) * 100
}

// LobbyState is the lifecycle phase of a lobby.
type LobbyState string

const (
	// LobbyEmpty means the lobby is available for any new bet.
	LobbyEmpty LobbyState = "empty"
	// LobbyOpen means one player is waiting for an opponent on the same bet.
	LobbyOpen LobbyState = "open"
	// LobbyActive means two players are matched and rolls are pending.
	LobbyActive LobbyState = "active"
	// LobbySettled means both rolls are in and the winner is recorded.
	LobbySettled LobbyState = "settled"
)

// Lobby is a reusable matchmaking slot pairing up to two bettors on an
// equal stake. Lobbies form a fixed pool and are reset to empty after
// settlement, never deleted.
type Lobby struct {
	ID          string     `db:"id"`
	State       LobbyState `db:"state"`
	Bet         int64      `db:"bet"`
	Player1ID   *int64     `db:"player1_id"`
	Player2ID   *int64     `db:"player2_id"`
	Player1Roll *int       `db:"player1_roll"`
	Player2Roll *int       `db:"player2_roll"`
	WinnerID    *int64     `db:"winner_id"`
	Draw        bool       `db:"draw"`
	OpenedAt    *time.Time `db:"opened_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// HasPlayer reports whether userID occupies a seat in the lobby.
func (l *Lobby) HasPlayer(userID int64) bool {
	return (l.Player1ID != nil && *l.Player1ID == userID) ||
		(l.Player2ID != nil && *l.Player2ID == userID)
}

// BothRolls reports whether both players have a recorded roll.
func (l *Lobby) BothRolls() bool {
	return l.Player1Roll != nil && l.Player2Roll != nil
}

// Pot returns the combined stake held in escrow for the lobby.
func (l *Lobby) Pot() int64 {
	return l.Bet * 2
}

// MatchResult is the outcome of a StartGame or JoinByLink call.
type MatchResult struct {
	LobbyID string
	// Matched is true when the caller was paired into an existing open
	// lobby; false when a new lobby was opened and the caller waits.
	Matched bool
}

// SubmitOutcome is the outcome of a SubmitResult call.
type SubmitOutcome struct {
	// Settled is true when this submission completed the lobby and the
	// winner was decided.
	Settled  bool
	WinnerID int64 // 0 on draw or while unsettled
	Draw     bool
}

// WinnerInfo is the settled view of a lobby returned by GetResult.
type WinnerInfo struct {
	LobbyID  string
	Player1  int64
	Roll1    int
	Player2  int64
	Roll2    int
	WinnerID int64 // 0 on draw
	Draw     bool
}

// Transaction represents a balance change record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	LobbyID     *string   `db:"lobby_id"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeBet      = "bet"       // Stake moved into lobby escrow
	TxTypePayout   = "payout"    // Pot credited to the winner
	TxTypeRefund   = "refund"    // Stake returned (cancel, draw, sweep)
	TxTypeDeposit  = "deposit"   // Top-up via the payment gateway
	TxTypeWithdraw = "withdraw"  // Withdrawal to the payment gateway
	TxTypeAdminAdd = "admin_add" // Admin added balance
	TxTypeAdminSub = "admin_sub" // Admin subtracted balance
)

// LeaderboardEntry is a single row of the leaderboard.
type LeaderboardEntry struct {
	UserID     int64   `db:"user_id"`
	Username   string  `db:"username"`
	TotalGames int     `db:"total_games"`
	Wins       int     `db:"wins"`
	WinRate    float64 `db:"win_rate"`
}
