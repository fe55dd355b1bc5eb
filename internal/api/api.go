package api

import (
	"context"
	"encoding/json"
	"strconv"

	"ludice-backend/internal/auth"
	"ludice-backend/internal/model"
	"ludice-backend/internal/pkg/ratelimit"
	"ludice-backend/internal/service"
)

// Payload is the decoded JSON body of a request. Mutating operations
// carry "signature" and "timestamp" alongside their fields.
type Payload map[string]any

// API is the bot-facing operation surface. Every mutating operation
// runs the signature verifier first, then the per-user rate limiter,
// then dispatches to the services. Reads skip signatures but are still
// rate limited.
type API struct {
	signer   *auth.Signer
	limiter  *ratelimit.Limiter
	accounts *service.AccountService
	game     *service.GameService
	ranking  *service.RankingService
}

// New creates the API surface over the given services.
func New(
	signer *auth.Signer,
	limiter *ratelimit.Limiter,
	accounts *service.AccountService,
	game *service.GameService,
	ranking *service.RankingService,
) *API {
	return &API{
		signer:   signer,
		limiter:  limiter,
		accounts: accounts,
		game:     game,
		ranking:  ranking,
	}
}

func (p Payload) stringField(name string) (string, bool) {
	v, ok := p[name].(string)
	return v, ok && v != ""
}

// int64Field reads a numeric field. JSON decoding yields float64; the
// other types cover payloads built in-process.
func (p Payload) int64Field(name string) (int64, bool) {
	switch v := p[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// gateSigned verifies the envelope and rate-limits the user.
// The verifier runs first: a forged request never consumes rate budget.
func (a *API) gateSigned(p Payload, userID int64) error {
	signature, ok := p.stringField("signature")
	if !ok {
		return ErrAuth
	}
	if !a.signer.Verify(p, signature) {
		return ErrAuth
	}
	if !a.limiter.Allow(strconv.FormatInt(userID, 10)) {
		return ErrRateLimited
	}
	return nil
}

// gateRead rate-limits a read keyed by the given identity.
func (a *API) gateRead(identity string) error {
	if !a.limiter.Allow(identity) {
		return ErrRateLimited
	}
	return nil
}

// userID extracts the mandatory user_id field.
func (p Payload) userID() (int64, error) {
	id, ok := p.int64Field("user_id")
	if !ok {
		return 0, ErrValidation
	}
	return id, nil
}

// Register creates an account for the calling user.
func (a *API) Register(ctx context.Context, p Payload) (*model.Account, error) {
	userID, err := p.userID()
	if err != nil {
		return nil, err
	}
	if err := a.gateSigned(p, userID); err != nil {
		return nil, err
	}

	username, _ := p.stringField("username")
	account, err := a.accounts.Register(ctx, userID, username)
	return account, mapError(err)
}

// StartGame enters matchmaking with the caller's stake.
func (a *API) StartGame(ctx context.Context, p Payload) (*model.MatchResult, error) {
	userID, err := p.userID()
	if err != nil {
		return nil, err
	}
	bet, ok := p.int64Field("bet")
	if !ok {
		return nil, ErrValidation
	}
	if err := a.gateSigned(p, userID); err != nil {
		return nil, err
	}

	result, err := a.game.StartGame(ctx, userID, bet)
	return result, mapError(err)
}

// CancelFind abandons an open lobby the caller waits in.
func (a *API) CancelFind(ctx context.Context, p Payload) error {
	userID, err := p.userID()
	if err != nil {
		return err
	}
	lobbyID, ok := p.stringField("lobby_id")
	if !ok {
		return ErrValidation
	}
	if err := a.gateSigned(p, userID); err != nil {
		return err
	}

	return mapError(a.game.CancelFind(ctx, userID, lobbyID))
}

// JoinByLink seats the caller into a specific open lobby.
func (a *API) JoinByLink(ctx context.Context, p Payload) (*model.MatchResult, error) {
	userID, err := p.userID()
	if err != nil {
		return nil, err
	}
	lobbyID, ok := p.stringField("lobby_id")
	if !ok {
		return nil, ErrValidation
	}
	bet, ok := p.int64Field("bet")
	if !ok {
		return nil, ErrValidation
	}
	if err := a.gateSigned(p, userID); err != nil {
		return nil, err
	}

	result, err := a.game.JoinByLink(ctx, lobbyID, userID, bet)
	return result, mapError(err)
}

// SubmitResult records the caller's roll and settles the lobby when
// both rolls are in.
func (a *API) SubmitResult(ctx context.Context, p Payload) (*model.SubmitOutcome, error) {
	userID, err := p.userID()
	if err != nil {
		return nil, err
	}
	lobbyID, ok := p.stringField("lobby_id")
	if !ok {
		return nil, ErrValidation
	}
	roll, ok := p.int64Field("roll")
	if !ok {
		return nil, ErrValidation
	}
	if err := a.gateSigned(p, userID); err != nil {
		return nil, err
	}

	outcome, err := a.game.SubmitResult(ctx, userID, lobbyID, int(roll))
	return outcome, mapError(err)
}

// LeaveAfterSettlement releases the caller's settled lobby for reuse.
func (a *API) LeaveAfterSettlement(ctx context.Context, p Payload) error {
	userID, err := p.userID()
	if err != nil {
		return err
	}
	lobbyID, ok := p.stringField("lobby_id")
	if !ok {
		return ErrValidation
	}
	if err := a.gateSigned(p, userID); err != nil {
		return err
	}

	return mapError(a.game.LeaveAfterSettlement(ctx, userID, lobbyID))
}

// GetResult returns the settled view of a lobby. Read operation:
// rate limited by lobby, unsigned.
func (a *API) GetResult(ctx context.Context, lobbyID string) (*model.WinnerInfo, error) {
	if lobbyID == "" {
		return nil, ErrValidation
	}
	if err := a.gateRead("result:" + lobbyID); err != nil {
		return nil, err
	}

	info, err := a.game.GetResult(ctx, lobbyID)
	return info, mapError(err)
}

// GetBalance returns the user's current balance. Read operation.
func (a *API) GetBalance(ctx context.Context, userID int64) (int64, error) {
	if err := a.gateRead(strconv.FormatInt(userID, 10)); err != nil {
		return 0, err
	}

	balance, err := a.accounts.GetBalance(ctx, userID)
	return balance, mapError(err)
}

// Deposit credits coins bought through the payment gateway.
func (a *API) Deposit(ctx context.Context, p Payload) (*model.Account, error) {
	return a.transfer(ctx, p, a.accounts.Deposit)
}

// Withdraw pays coins out through the payment gateway.
func (a *API) Withdraw(ctx context.Context, p Payload) (*model.Account, error) {
	return a.transfer(ctx, p, a.accounts.Withdraw)
}

func (a *API) transfer(ctx context.Context, p Payload, op func(context.Context, int64, int64) (*model.Account, error)) (*model.Account, error) {
	userID, err := p.userID()
	if err != nil {
		return nil, err
	}
	amount, ok := p.int64Field("amount")
	if !ok {
		return nil, ErrValidation
	}
	if err := a.gateSigned(p, userID); err != nil {
		return nil, err
	}

	account, err := op(ctx, userID, amount)
	return account, mapError(err)
}

// Leaderboard orderings.
const (
	LeaderboardByGames   = "games"
	LeaderboardByWinRate = "winRate"
)

// GetLeaderboard returns the leaderboard in the requested ordering.
// Read operation, rate limited per ordering.
func (a *API) GetLeaderboard(ctx context.Context, by string, limit int) ([]*model.LeaderboardEntry, error) {
	if err := a.gateRead("leaderboard:" + by); err != nil {
		return nil, err
	}

	switch by {
	case LeaderboardByGames:
		entries, err := a.ranking.TopByGames(ctx, limit)
		return entries, mapError(err)
	case LeaderboardByWinRate:
		entries, err := a.ranking.TopByWinRate(ctx, limit)
		return entries, mapError(err)
	default:
		return nil, ErrValidation
	}
}
