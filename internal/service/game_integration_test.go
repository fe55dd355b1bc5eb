// End-to-end service tests against a real PostgreSQL container.
package service

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ludice-backend/internal/model"
	"ludice-backend/internal/payment"
	"ludice-backend/internal/pkg/ratelimit"
	"ludice-backend/internal/repository"
)

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// testEnv bundles the services under test with their repositories.
type testEnv struct {
	pool     *pgxpool.Pool
	accounts *AccountService
	game     *GameService
	ranking  *RankingService
	gateway  *payment.NoopGateway

	accountRepo *repository.AccountRepository
	lobbyRepo   *repository.LobbyRepository
	txRepo      *repository.TransactionRepository
}

func setupEnv(t *testing.T, lobbies int) (*testEnv, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE accounts (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			wins INT NOT NULL DEFAULT 0,
			total_games INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE lobbies (
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
		)`,
		`CREATE TABLE transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			lobby_id UUID,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	} {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	accountRepo := repository.NewAccountRepository(pool)
	lobbyRepo := repository.NewLobbyRepository(pool)
	txRepo := repository.NewTransactionRepository(pool)

	_, err = lobbyRepo.Seed(ctx, lobbies)
	require.NoError(t, err)

	gateway := payment.NewNoopGateway()
	idem := payment.NewIdempotentGateway(gateway, newMemoryReceiptStore())

	env := &testEnv{
		pool:        pool,
		accounts:    NewAccountService(pool, accountRepo, txRepo, gateway),
		game:        NewGameService(pool, accountRepo, lobbyRepo, txRepo, idem, 10000),
		ranking:     NewRankingService(accountRepo),
		gateway:     gateway,
		accountRepo: accountRepo,
		lobbyRepo:   lobbyRepo,
		txRepo:      txRepo,
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return env, cleanup
}

// memoryReceiptStore mirrors the Redis receipt store for tests.
type memoryReceiptStore struct {
	mu       sync.Mutex
	receipts map[string]*payment.Receipt
	pending  map[string]bool
}

func newMemoryReceiptStore() *memoryReceiptStore {
	return &memoryReceiptStore{
		receipts: make(map[string]*payment.Receipt),
		pending:  make(map[string]bool),
	}
}

func (s *memoryReceiptStore) Acquire(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[key] || s.receipts[key] != nil {
		return false, nil
	}
	s.pending[key] = true
	return true, nil
}

func (s *memoryReceiptStore) Get(_ context.Context, key string) (*payment.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipts[key], nil
}

func (s *memoryReceiptStore) Save(_ context.Context, key string, receipt *payment.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	s.receipts[key] = receipt
	return nil
}

func (s *memoryReceiptStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

func (env *testEnv) register(t *testing.T, ctx context.Context, userID int64, name string, balance int64) {
	_, err := env.accounts.Register(ctx, userID, name)
	require.NoError(t, err)
	if balance > 0 {
		_, err = env.accounts.Deposit(ctx, userID, balance)
		require.NoError(t, err)
	}
}

func TestFullGameFlow(t *testing.T) {
	env, cleanup := setupEnv(t, 4)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 1000)
	env.register(t, ctx, 2, "bob", 1000)

	// Alice opens a lobby on bet 100; her stake is escrowed
	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	balance, err := env.accounts.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)

	// Bob matches into the same lobby
	res2, err := env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)
	assert.True(t, res2.Matched)
	assert.Equal(t, res.LobbyID, res2.LobbyID)

	// Result is not ready before both rolls
	_, err = env.game.GetResult(ctx, res.LobbyID)
	assert.ErrorIs(t, err, ErrNotReady)

	// Alice rolls 6: recorded, not settled yet
	out, err := env.game.SubmitResult(ctx, 1, res.LobbyID, 6)
	require.NoError(t, err)
	assert.False(t, out.Settled)

	// Bob rolls 3: lobby settles, Alice wins the pot
	out, err = env.game.SubmitResult(ctx, 2, res.LobbyID, 3)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.False(t, out.Draw)
	assert.Equal(t, int64(1), out.WinnerID)

	// Alice: 900 + 200 pot; Bob: 900
	balance, _ = env.accounts.GetBalance(ctx, 1)
	assert.Equal(t, int64(1100), balance)
	balance, _ = env.accounts.GetBalance(ctx, 2)
	assert.Equal(t, int64(900), balance)

	// Stats recorded for both
	alice, _ := env.accounts.GetAccount(ctx, 1)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, 1, alice.TotalGames)
	bob, _ := env.accounts.GetAccount(ctx, 2)
	assert.Equal(t, 0, bob.Wins)
	assert.Equal(t, 1, bob.TotalGames)

	// Result is queryable
	info, err := env.game.GetResult(ctx, res.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.WinnerID)
	assert.Equal(t, 6, info.Roll1)
	assert.Equal(t, 3, info.Roll2)

	// Release the lobby; the slot becomes reusable
	require.NoError(t, env.game.LeaveAfterSettlement(ctx, 1, res.LobbyID))
	lobby, err := env.lobbyRepo.GetByID(ctx, res.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, model.LobbyEmpty, lobby.State)
}

func TestDrawRefundsBothStakes(t *testing.T) {
	env, cleanup := setupEnv(t, 2)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 200)
	require.NoError(t, err)
	_, err = env.game.StartGame(ctx, 2, 200)
	require.NoError(t, err)

	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 4)
	require.NoError(t, err)
	out, err := env.game.SubmitResult(ctx, 2, res.LobbyID, 4)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.True(t, out.Draw)
	assert.Equal(t, int64(0), out.WinnerID)

	// Both stakes refunded, a game counted for each, no wins
	for _, id := range []int64{1, 2} {
		account, err := env.accounts.GetAccount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(500), account.Balance)
		assert.Equal(t, 1, account.TotalGames)
		assert.Equal(t, 0, account.Wins)
	}
}

func TestStartGameInsufficientFunds(t *testing.T) {
	env, cleanup := setupEnv(t, 2)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 50)

	_, err := env.game.StartGame(ctx, 1, 100)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	// Nothing was escrowed and no lobby was claimed
	balance, _ := env.accounts.GetBalance(ctx, 1)
	assert.Equal(t, int64(50), balance)
	open, err := env.lobbyRepo.CountByState(ctx, model.LobbyOpen)
	require.NoError(t, err)
	assert.Equal(t, 0, open)
}

func TestStartGameValidation(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 1000)

	_, err := env.game.StartGame(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = env.game.StartGame(ctx, 1, -10)
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = env.game.StartGame(ctx, 1, 10001)
	assert.ErrorIs(t, err, ErrInvalidBet)

	_, err = env.game.SubmitResult(ctx, 1, "whatever", 7)
	assert.ErrorIs(t, err, ErrInvalidRoll)
}

func TestCancelFindRefundsAndReuses(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 300)
	env.register(t, ctx, 2, "bob", 300)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)

	// Only the waiting player can cancel
	err = env.game.CancelFind(ctx, 2, res.LobbyID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	require.NoError(t, env.game.CancelFind(ctx, 1, res.LobbyID))

	balance, _ := env.accounts.GetBalance(ctx, 1)
	assert.Equal(t, int64(300), balance)

	// Cancelling again fails, the lobby is already empty
	err = env.game.CancelFind(ctx, 1, res.LobbyID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// The slot is claimable by someone else
	res2, err := env.game.StartGame(ctx, 2, 50)
	require.NoError(t, err)
	assert.Equal(t, res.LobbyID, res2.LobbyID)
}

func TestJoinByLink(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)

	// Bet mismatch and self-join are rejected
	_, err = env.game.JoinByLink(ctx, res.LobbyID, 2, 50)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = env.game.JoinByLink(ctx, res.LobbyID, 1, 100)
	assert.ErrorIs(t, err, ErrInvalidState)

	joined, err := env.game.JoinByLink(ctx, res.LobbyID, 2, 100)
	require.NoError(t, err)
	assert.True(t, joined.Matched)

	balance, _ := env.accounts.GetBalance(ctx, 2)
	assert.Equal(t, int64(400), balance)
}

func TestCapacityExhausted(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 1000)
	env.register(t, ctx, 2, "bob", 1000)

	_, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)

	// Bob wants a different bet: no match, no free lobby
	_, err = env.game.StartGame(ctx, 2, 200)
	assert.ErrorIs(t, err, ErrCapacityExhausted)

	// Bob's stake was not escrowed
	balance, _ := env.accounts.GetBalance(ctx, 2)
	assert.Equal(t, int64(1000), balance)
}

func TestGatewayFailureRollsBackSettlement(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)
	_, err = env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)

	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 6)
	require.NoError(t, err)

	// Gateway goes down for the settling submission
	env.gateway.Fail = payment.ErrGatewayUnavailable
	_, err = env.game.SubmitResult(ctx, 2, res.LobbyID, 3)
	assert.ErrorIs(t, err, ErrPaymentGateway)

	// Settlement rolled back: lobby still active, both rolls kept,
	// no payout, no stats
	lobby, err := env.lobbyRepo.GetByID(ctx, res.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, model.LobbyActive, lobby.State)
	assert.True(t, lobby.BothRolls())

	alice, _ := env.accounts.GetAccount(ctx, 1)
	assert.Equal(t, int64(400), alice.Balance)
	assert.Equal(t, 0, alice.TotalGames)

	// Retry settles once the gateway recovers
	env.gateway.Fail = nil
	out, err := env.game.SubmitResult(ctx, 2, res.LobbyID, 3)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.Equal(t, int64(1), out.WinnerID)

	alice, _ = env.accounts.GetAccount(ctx, 1)
	assert.Equal(t, int64(600), alice.Balance)
}

func TestRollResubmissionLastWriteWins(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)
	_, err = env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)

	// Alice rolls 2, then corrects to 5 before Bob rolls
	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 2)
	require.NoError(t, err)
	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 5)
	require.NoError(t, err)

	out, err := env.game.SubmitResult(ctx, 2, res.LobbyID, 3)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.Equal(t, int64(1), out.WinnerID)

	// Resubmission after settlement is rejected
	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 6)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOutsiderCannotRoll(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)
	env.register(t, ctx, 3, "mallory", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)
	_, err = env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)

	_, err = env.game.SubmitResult(ctx, 3, res.LobbyID, 6)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestConcurrentStartGameSingleOpponent(t *testing.T) {
	env, cleanup := setupEnv(t, 8)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 1000)
	for i := int64(2); i <= 9; i++ {
		env.register(t, ctx, i, "racer", 1000)
	}

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)

	// Eight users race for Alice's lobby; exactly one matches it, the
	// rest open fresh lobbies
	var wg sync.WaitGroup
	var mu sync.Mutex
	matchedInto := 0

	wg.Add(8)
	for i := int64(2); i <= 9; i++ {
		go func(userID int64) {
			defer wg.Done()
			r, err := env.game.StartGame(ctx, userID, 100)
			if err == nil && r.Matched && r.LobbyID == res.LobbyID {
				mu.Lock()
				matchedInto++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, matchedInto)
}

func TestSweeperRefundsStaleOpenLobby(t *testing.T) {
	env, cleanup := setupEnv(t, 2)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)

	// Zero open timeout: everything open is immediately stale; active
	// sweeping is disabled
	sweeper := NewSweeper(env.pool, env.accountRepo, env.lobbyRepo, env.txRepo,
		ratelimit.New(time.Second, time.Hour), 0, 0, time.Minute)

	// Bob matched in just before the sweep: active lobbies are spared
	activeRes, err := env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)
	require.Equal(t, res.LobbyID, activeRes.LobbyID)

	swept, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// A fresh open lobby does get swept and refunded
	res2, err := env.game.StartGame(ctx, 1, 50)
	require.NoError(t, err)

	swept, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	lobby, err := env.lobbyRepo.GetByID(ctx, res2.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, model.LobbyEmpty, lobby.State)

	balance, _ := env.accounts.GetBalance(ctx, 1)
	assert.Equal(t, int64(300), balance) // 500 - 100 escrowed in active lobby, 50 refunded back
}

func TestSweeperRefundsStalledActiveLobby(t *testing.T) {
	env, cleanup := setupEnv(t, 2)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)
	_, err = env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)

	// Alice rolled, Bob never did
	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 4)
	require.NoError(t, err)

	// Long open timeout, nanosecond active timeout: only the stalled
	// match is stale
	sweeper := NewSweeper(env.pool, env.accountRepo, env.lobbyRepo, env.txRepo,
		ratelimit.New(time.Second, time.Hour), time.Hour, time.Nanosecond, time.Minute)

	swept, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	lobby, err := env.lobbyRepo.GetByID(ctx, res.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, model.LobbyEmpty, lobby.State)

	// Both stakes come back
	balance, _ := env.accounts.GetBalance(ctx, 1)
	assert.Equal(t, int64(500), balance)
	balance, _ = env.accounts.GetBalance(ctx, 2)
	assert.Equal(t, int64(500), balance)

	// No game is recorded for an abandoned match
	alice, err := env.accounts.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, alice.TotalGames)
}

func TestSweeperSparesFullyRolledLobby(t *testing.T) {
	env, cleanup := setupEnv(t, 2)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)
	env.register(t, ctx, 2, "bob", 500)

	res, err := env.game.StartGame(ctx, 1, 100)
	require.NoError(t, err)
	_, err = env.game.StartGame(ctx, 2, 100)
	require.NoError(t, err)

	// Both rolled but the payout gateway failed, so the lobby is still
	// active awaiting a settlement retry
	_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 6)
	require.NoError(t, err)
	env.gateway.Fail = payment.ErrGatewayUnavailable
	_, err = env.game.SubmitResult(ctx, 2, res.LobbyID, 3)
	require.ErrorIs(t, err, ErrPaymentGateway)

	sweeper := NewSweeper(env.pool, env.accountRepo, env.lobbyRepo, env.txRepo,
		ratelimit.New(time.Second, time.Hour), time.Hour, time.Nanosecond, time.Minute)

	swept, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// The retry settles normally
	env.gateway.Fail = nil
	out, err := env.game.SubmitResult(ctx, 2, res.LobbyID, 3)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.Equal(t, int64(1), out.WinnerID)
}

func TestLeaderboardsAfterGames(t *testing.T) {
	env, cleanup := setupEnv(t, 2)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 1000)
	env.register(t, ctx, 2, "bob", 1000)

	// Two rounds, Alice wins both
	for i := 0; i < 2; i++ {
		res, err := env.game.StartGame(ctx, 1, 100)
		require.NoError(t, err)
		_, err = env.game.StartGame(ctx, 2, 100)
		require.NoError(t, err)
		_, err = env.game.SubmitResult(ctx, 1, res.LobbyID, 6)
		require.NoError(t, err)
		_, err = env.game.SubmitResult(ctx, 2, res.LobbyID, 1)
		require.NoError(t, err)
		require.NoError(t, env.game.LeaveAfterSettlement(ctx, 1, res.LobbyID))
	}

	byRate, err := env.ranking.TopByWinRate(ctx, 10)
	require.NoError(t, err)
	require.Len(t, byRate, 2)
	assert.Equal(t, int64(1), byRate[0].UserID)
	assert.InDelta(t, 100.0, byRate[0].WinRate, 0.001)
	assert.Equal(t, int64(2), byRate[1].UserID)
	assert.InDelta(t, 0.0, byRate[1].WinRate, 0.001)
}

func TestWithdrawGatewayFailureKeepsBalance(t *testing.T) {
	env, cleanup := setupEnv(t, 1)
	defer cleanup()
	ctx := context.Background()

	env.register(t, ctx, 1, "alice", 500)

	env.gateway.Fail = payment.ErrGatewayUnavailable
	_, err := env.accounts.Withdraw(ctx, 1, 200)
	assert.ErrorIs(t, err, ErrPaymentGateway)

	balance, _ := env.accounts.GetBalance(ctx, 1)
	assert.Equal(t, int64(500), balance)

	env.gateway.Fail = nil
	account, err := env.accounts.Withdraw(ctx, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(300), account.Balance)

	_, err = env.accounts.Withdraw(ctx, 1, 1000)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
}
