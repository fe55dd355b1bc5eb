// Package service provides business logic implementations.
package service

import "errors"

// Common errors for service operations. Handlers and the signed API map
// these onto their own error taxonomies.
var (
	ErrNotRegistered     = errors.New("user is not registered")
	ErrAlreadyRegistered = errors.New("user is already registered")
	ErrInvalidBet        = errors.New("bet amount is invalid")
	ErrInvalidRoll       = errors.New("roll must be between 1 and 6")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrCapacityExhausted = errors.New("no free lobby available")
	ErrInvalidState      = errors.New("lobby is not in a valid state for this operation")
	ErrNotParticipant    = errors.New("user is not a participant of this lobby")
	ErrNotReady          = errors.New("result is not ready yet")
	ErrPaymentGateway    = errors.New("payment gateway failure")
)
