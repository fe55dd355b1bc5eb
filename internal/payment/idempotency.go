package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// pendingMarker is stored under a claimed key until the gateway call
// resolves into a receipt.
const pendingMarker = "pending"

// Key builds the idempotency key for one payout leg of a settlement.
func Key(lobbyID string, userID int64) string {
	return fmt.Sprintf("payment:%s:%d", lobbyID, userID)
}

// ReceiptStore persists payout receipts per settlement leg so a retried
// settlement never pays the same user twice for one lobby cycle.
type ReceiptStore interface {
	// Acquire claims the key. Returns false when another payout for the
	// same key is in flight or already completed.
	Acquire(ctx context.Context, key string) (bool, error)
	// Get returns the stored receipt, or nil when the key is absent or
	// still pending.
	Get(ctx context.Context, key string) (*Receipt, error)
	// Save replaces the pending marker with the completed receipt.
	Save(ctx context.Context, key string, receipt *Receipt) error
	// Release drops a claim whose gateway call failed, so the
	// settlement can be retried.
	Release(ctx context.Context, key string) error
}

// RedisReceiptStore is the Redis-backed ReceiptStore.
type RedisReceiptStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReceiptStore creates a receipt store with the given key TTL.
func NewRedisReceiptStore(client *redis.Client, ttl time.Duration) *RedisReceiptStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisReceiptStore{client: client, ttl: ttl}
}

// Acquire claims the key with SETNX.
func (s *RedisReceiptStore) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire payment key: %w", err)
	}
	return ok, nil
}

// Get returns the stored receipt for the key, nil if absent or pending.
func (s *RedisReceiptStore) Get(ctx context.Context, key string) (*Receipt, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment receipt: %w", err)
	}
	if raw == pendingMarker {
		return nil, nil
	}

	var receipt Receipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode payment receipt: %w", err)
	}
	return &receipt, nil
}

// Save stores the completed receipt under the key.
func (s *RedisReceiptStore) Save(ctx context.Context, key string, receipt *Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to encode payment receipt: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save payment receipt: %w", err)
	}
	return nil
}

// Release deletes the key after a failed gateway call.
func (s *RedisReceiptStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release payment key: %w", err)
	}
	return nil
}

// IdempotentGateway wraps a Gateway with a ReceiptStore. A replayed key
// returns the cached receipt instead of paying again.
type IdempotentGateway struct {
	gateway Gateway
	store   ReceiptStore
}

// NewIdempotentGateway wraps gateway with per-key idempotency.
func NewIdempotentGateway(gateway Gateway, store ReceiptStore) *IdempotentGateway {
	return &IdempotentGateway{gateway: gateway, store: store}
}

// Name returns the wrapped gateway's identifier.
func (g *IdempotentGateway) Name() string { return g.gateway.Name() }

// PayOnce executes the payment at most once per key. Concurrent calls
// for the same key either return the cached receipt or
// ErrPaymentInFlight; a failed call releases the key for retry.
func (g *IdempotentGateway) PayOnce(ctx context.Context, key string, toUser int64, amount int64, memo string) (*Receipt, error) {
	if receipt, err := g.store.Get(ctx, key); err != nil {
		return nil, err
	} else if receipt != nil {
		log.Debug().Str("key", key).Msg("Returning cached payment receipt")
		return receipt, nil
	}

	acquired, err := g.store.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acquired {
		// Lost the claim race: either the winner finished and left a
		// receipt, or it is still paying.
		if receipt, err := g.store.Get(ctx, key); err != nil {
			return nil, err
		} else if receipt != nil {
			return receipt, nil
		}
		return nil, ErrPaymentInFlight
	}

	receipt, err := g.gateway.Pay(ctx, toUser, amount, memo)
	if err != nil {
		if relErr := g.store.Release(ctx, key); relErr != nil {
			log.Error().Err(relErr).Str("key", key).Msg("Failed to release payment key after gateway error")
		}
		return nil, err
	}

	if err := g.store.Save(ctx, key, receipt); err != nil {
		// The payment went through; losing the receipt only costs the
		// dedup cache, not money. Log and return the receipt.
		log.Error().Err(err).Str("key", key).Msg("Failed to cache payment receipt")
	}
	return receipt, nil
}
