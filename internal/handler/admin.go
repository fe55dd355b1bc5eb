package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"ludice-backend/internal/repository"
	"ludice-backend/internal/service"
)

// AdminHandler handles admin balance adjustments. Routed behind the
// admin middleware.
type AdminHandler struct {
	accounts *service.AccountService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// parseAdjustArgs reads "<user_id> <amount>" command arguments.
func parseAdjustArgs(c tele.Context) (int64, int64, bool) {
	args := c.Args()
	if len(args) != 2 {
		return 0, 0, false
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, false
	}
	return userID, amount, true
}

// HandleAdminAdd handles /admin_add <user_id> <amount>.
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	userID, amount, ok := parseAdjustArgs(c)
	if !ok {
		return c.Reply("Usage: /admin_add <user_id> <amount>")
	}

	account, err := h.accounts.AdminAdjust(context.Background(), userID, amount)
	if err != nil {
		return h.replyAdminError(c, err)
	}
	return c.Reply(fmt.Sprintf("✅ Added %d coins to %d. Balance: %d", amount, userID, account.Balance))
}

// HandleAdminSub handles /admin_sub <user_id> <amount>.
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	userID, amount, ok := parseAdjustArgs(c)
	if !ok {
		return c.Reply("Usage: /admin_sub <user_id> <amount>")
	}

	account, err := h.accounts.AdminAdjust(context.Background(), userID, -amount)
	if err != nil {
		return h.replyAdminError(c, err)
	}
	return c.Reply(fmt.Sprintf("✅ Removed %d coins from %d. Balance: %d", amount, userID, account.Balance))
}

func (h *AdminHandler) replyAdminError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotRegistered):
		return c.Reply("❌ No such account")
	case errors.Is(err, repository.ErrInsufficientFunds):
		return c.Reply("❌ The account does not hold that much")
	default:
		return c.Reply("❌ Adjustment failed, please try again later")
	}
}
