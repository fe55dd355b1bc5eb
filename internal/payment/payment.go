// Package payment implements the outbound payment gateways and the
// idempotency wrapper that guards against double payouts.
package payment

import (
	"context"
	"errors"
	"time"
)

// Common errors for payment operations.
var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPaymentRejected    = errors.New("payment rejected by gateway")
	ErrInsufficientWallet = errors.New("payout wallet balance too low")
	ErrPaymentInFlight    = errors.New("payment already in flight")
)

// Receipt is the provider's confirmation of a completed transfer.
type Receipt struct {
	Provider  string    `json:"provider"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

// Gateway moves value between the house and a bettor. Amounts are in
// internal coins; each implementation converts to its own unit.
type Gateway interface {
	Name() string
	Pay(ctx context.Context, toUser int64, amount int64, memo string) (*Receipt, error)
}
