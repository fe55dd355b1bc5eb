package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"ludice-backend/internal/repository"
	"ludice-backend/internal/service"
)

// PaymentHandler handles deposit and withdrawal commands.
type PaymentHandler struct {
	accounts *service.AccountService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(accounts *service.AccountService) *PaymentHandler {
	return &PaymentHandler{accounts: accounts}
}

// HandleDeposit handles /deposit <amount>: buy coins through the
// payment gateway.
func (h *PaymentHandler) HandleDeposit(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	amount, ok := parseAmount(c)
	if !ok || amount <= 0 {
		return c.Reply("Usage: /deposit <amount>")
	}

	account, err := h.accounts.Deposit(ctx, sender.ID, amount)
	if err != nil {
		return h.replyPaymentError(c, err)
	}

	return c.Reply(fmt.Sprintf(
		"💳 Deposit of %d coins confirmed. Balance: %d", amount, account.Balance,
	))
}

// HandleWithdraw handles /withdraw <amount>: cash coins out through
// the payment gateway.
func (h *PaymentHandler) HandleWithdraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	amount, ok := parseAmount(c)
	if !ok || amount <= 0 {
		return c.Reply("Usage: /withdraw <amount>")
	}

	account, err := h.accounts.Withdraw(ctx, sender.ID, amount)
	if err != nil {
		return h.replyPaymentError(c, err)
	}

	return c.Reply(fmt.Sprintf(
		"💸 Withdrawal of %d coins sent. Balance: %d", amount, account.Balance,
	))
}

func (h *PaymentHandler) replyPaymentError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotRegistered):
		return c.Reply("ℹ️ You are not registered yet, send /start first")
	case errors.Is(err, service.ErrInvalidAmount):
		return c.Reply("❌ Invalid amount")
	case errors.Is(err, repository.ErrInsufficientFunds):
		return c.Reply("💸 Not enough coins")
	case errors.Is(err, service.ErrPaymentGateway):
		return c.Reply("⚠️ The payment provider is unavailable, try again later")
	default:
		return c.Reply("❌ Something went wrong, please try again later")
	}
}
