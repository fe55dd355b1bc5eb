// Package api exposes the bot-facing operation set behind the signed
// request envelope and the per-user rate limiter.
package api

import (
	"errors"

	"github.com/rs/zerolog/log"

	"ludice-backend/internal/repository"
	"ludice-backend/internal/service"
)

// Error categories returned to callers. Verifier and limiter failures
// are terminal: no core logic runs after them.
var (
	ErrAuth              = errors.New("bad, missing or expired signature")
	ErrRateLimited       = errors.New("too many requests")
	ErrValidation        = errors.New("invalid request payload")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidState      = errors.New("invalid state for this operation")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCapacityExhausted = errors.New("no capacity available")
	ErrPaymentGateway    = errors.New("payment gateway error")
	ErrInternal          = errors.New("internal server error")
)

// mapError folds service and repository errors into the API taxonomy.
// Expected conditions pass through by category; anything unexpected is
// logged and surfaced as a generic internal error.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotRegistered),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrLobbyNotFound):
		return ErrNotFound
	case errors.Is(err, service.ErrAlreadyRegistered):
		return ErrAlreadyExists
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotReady):
		return ErrInvalidState
	case errors.Is(err, repository.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, service.ErrCapacityExhausted):
		return ErrCapacityExhausted
	case errors.Is(err, service.ErrPaymentGateway):
		return ErrPaymentGateway
	case errors.Is(err, service.ErrInvalidBet),
		errors.Is(err, service.ErrInvalidRoll),
		errors.Is(err, service.ErrInvalidAmount):
		return ErrValidation
	default:
		log.Error().Err(err).Msg("Unexpected error in API operation")
		return ErrInternal
	}
}
