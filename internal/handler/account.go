// Package handler provides Telegram bot command handlers. Handlers are
// a thin presentation layer over the services: parse the command,
// invoke the operation, format the reply.
package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"ludice-backend/internal/service"
)

// AccountHandler handles registration and balance commands.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func displayName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// HandleStart handles the /start command, registering the user if they
// are new.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	account, created, err := h.accounts.EnsureRegistered(ctx, sender.ID, displayName(sender))
	if err != nil {
		return c.Reply("❌ Could not set up your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎲 Welcome @%s!\n\n"+
				"Your account is ready. Balance: %d coins\n\n"+
				"Commands:\n"+
				"/bet <amount> - find an opponent\n"+
				"/join <lobby> - join a lobby by ID\n"+
				"/cancel - stop waiting for an opponent\n"+
				"/balance - show balance\n"+
				"/me - your stats\n"+
				"/deposit <amount> - buy coins\n"+
				"/withdraw <amount> - cash out\n"+
				"/top_games /top_winrate - leaderboards\n\n"+
				"Once matched, send a 🎲 to roll!",
			displayName(sender), account.Balance,
		))
	}

	return c.Reply(fmt.Sprintf(
		"👋 Welcome back @%s! Balance: %d coins",
		displayName(sender), account.Balance,
	))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.accounts.GetBalance(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotRegistered) {
			return c.Reply("ℹ️ You are not registered yet, send /start first")
		}
		return c.Reply("❌ Could not fetch your balance, please try again later")
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %d coins", balance))
}

// HandleMe handles the /me command, showing balance and game stats.
func (h *AccountHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	account, err := h.accounts.GetAccount(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotRegistered) {
			return c.Reply("ℹ️ You are not registered yet, send /start first")
		}
		return c.Reply("❌ Could not fetch your account, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"📊 @%s\n"+
			"━━━━━━━━━━━━━━━\n"+
			"💰 Balance: %d coins\n"+
			"🎲 Games: %d\n"+
			"🏆 Wins: %d\n"+
			"📈 Win rate: %.1f%%\n"+
			"━━━━━━━━━━━━━━━",
		account.Username, account.Balance, account.TotalGames, account.Wins, account.WinRate(),
	))
}

// HandleHistory handles the /history command, listing recent ledger
// entries.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	txs, err := h.accounts.History(ctx, sender.ID, 10)
	if err != nil {
		return c.Reply("❌ Could not fetch your history, please try again later")
	}
	if len(txs) == 0 {
		return c.Reply("📒 No transactions yet")
	}

	msg := "📒 Recent transactions\n━━━━━━━━━━━━━━━\n"
	for _, tx := range txs {
		sign := ""
		if tx.Amount > 0 {
			sign = "+"
		}
		msg += fmt.Sprintf("%s%d (%s)\n", sign, tx.Amount, tx.Type)
	}
	return c.Reply(msg)
}
