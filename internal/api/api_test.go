package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludice-backend/internal/auth"
	"ludice-backend/internal/pkg/ratelimit"
	"ludice-backend/internal/repository"
	"ludice-backend/internal/service"
)

const testSecret = "test-secret"

// newTestAPI builds an API with real gates and no backing services.
// Gate tests must fail before any service is reached.
func newTestAPI() *API {
	signer := auth.New(testSecret, 300*time.Second)
	limiter := ratelimit.New(time.Second, time.Hour)
	return New(signer, limiter, nil, nil, nil)
}

// signedPayload signs the payload fields with the test secret.
func signedPayload(t *testing.T, fields Payload) Payload {
	t.Helper()
	signer := auth.New(testSecret, 300*time.Second)

	p := Payload{"timestamp": float64(time.Now().Unix())}
	for k, v := range fields {
		p[k] = v
	}
	sig, err := signer.Sign(p)
	require.NoError(t, err)
	p["signature"] = sig
	return p
}

func TestGateSigned_MissingSignature(t *testing.T) {
	a := newTestAPI()

	_, err := a.StartGame(context.Background(), Payload{
		"user_id":   float64(1),
		"bet":       float64(100),
		"timestamp": float64(time.Now().Unix()),
	})
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGateSigned_TamperedPayload(t *testing.T) {
	a := newTestAPI()

	p := signedPayload(t, Payload{"user_id": float64(1), "bet": float64(100)})
	p["bet"] = float64(10000)

	_, err := a.StartGame(context.Background(), p)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGateSigned_StaleTimestamp(t *testing.T) {
	a := newTestAPI()
	signer := auth.New(testSecret, 300*time.Second)

	p := Payload{
		"user_id":   float64(1),
		"bet":       float64(100),
		"timestamp": float64(time.Now().Add(-10 * time.Minute).Unix()),
	}
	sig, err := signer.Sign(p)
	require.NoError(t, err)
	p["signature"] = sig

	_, err = a.StartGame(context.Background(), p)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGateSigned_RateLimitAfterAuth(t *testing.T) {
	a := newTestAPI()

	// A forged request does not consume the user's rate budget
	err := a.CancelFind(context.Background(), Payload{
		"user_id":   float64(7),
		"lobby_id":  "x",
		"timestamp": float64(time.Now().Unix()),
		"signature": "forged",
	})
	assert.ErrorIs(t, err, ErrAuth)

	// The first valid request passes the gates (and fails deeper, on
	// the absent service, which is out of scope here); the immediate
	// second one is rate limited
	p := signedPayload(t, Payload{"user_id": float64(7), "lobby_id": "x"})
	assert.NotErrorIs(t, gateOnly(a, p, 7), ErrRateLimited)

	p2 := signedPayload(t, Payload{"user_id": float64(7), "lobby_id": "y"})
	assert.ErrorIs(t, gateOnly(a, p2, 7), ErrRateLimited)
}

func gateOnly(a *API, p Payload, userID int64) error {
	return a.gateSigned(p, userID)
}

func TestGateRead_RateLimited(t *testing.T) {
	a := newTestAPI()

	_, err := a.GetBalance(context.Background(), 42)
	assert.NotErrorIs(t, err, ErrRateLimited)

	_, err = a.GetBalance(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Another user is unaffected
	_, err = a.GetBalance(context.Background(), 43)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestValidation_MissingFields(t *testing.T) {
	a := newTestAPI()
	ctx := context.Background()

	_, err := a.StartGame(ctx, Payload{"bet": float64(100)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.StartGame(ctx, Payload{"user_id": float64(1)})
	assert.ErrorIs(t, err, ErrValidation)

	err = a.CancelFind(ctx, Payload{"user_id": float64(1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.SubmitResult(ctx, Payload{"user_id": float64(1), "lobby_id": "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.GetResult(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.Deposit(ctx, Payload{"user_id": float64(1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.GetLeaderboard(ctx, "balance", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPayloadFieldExtraction(t *testing.T) {
	p := Payload{
		"float": float64(42),
		"int":   7,
		"int64": int64(9),
		"str":   "hello",
		"empty": "",
		"wrong": true,
	}

	v, ok := p.int64Field("float")
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)

	v, ok = p.int64Field("int")
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	v, ok = p.int64Field("int64")
	assert.True(t, ok)
	assert.Equal(t, int64(9), v)

	_, ok = p.int64Field("str")
	assert.False(t, ok)
	_, ok = p.int64Field("missing")
	assert.False(t, ok)

	s, ok := p.stringField("str")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = p.stringField("empty")
	assert.False(t, ok)
	_, ok = p.stringField("wrong")
	assert.False(t, ok)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes", nil, nil},
		{"not registered", service.ErrNotRegistered, ErrNotFound},
		{"account missing", repository.ErrAccountNotFound, ErrNotFound},
		{"lobby missing", repository.ErrLobbyNotFound, ErrNotFound},
		{"already registered", service.ErrAlreadyRegistered, ErrAlreadyExists},
		{"invalid state", service.ErrInvalidState, ErrInvalidState},
		{"not participant", service.ErrNotParticipant, ErrInvalidState},
		{"not ready", service.ErrNotReady, ErrInvalidState},
		{"insufficient funds", repository.ErrInsufficientFunds, ErrInsufficientFunds},
		{"capacity", service.ErrCapacityExhausted, ErrCapacityExhausted},
		{"gateway", service.ErrPaymentGateway, ErrPaymentGateway},
		{"bad bet", service.ErrInvalidBet, ErrValidation},
		{"bad roll", service.ErrInvalidRoll, ErrValidation},
		{"bad amount", service.ErrInvalidAmount, ErrValidation},
		{"unexpected", errors.New("disk on fire"), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}
