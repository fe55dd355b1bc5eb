package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"ludice-backend/internal/model"
	"ludice-backend/internal/repository"
	"ludice-backend/internal/service"
)

// GameHandler handles matchmaking and dice commands.
type GameHandler struct {
	game *service.GameService
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(game *service.GameService) *GameHandler {
	return &GameHandler{game: game}
}

// parseAmount reads the single integer argument of a command.
func parseAmount(c tele.Context) (int64, bool) {
	args := c.Args()
	if len(args) != 1 {
		return 0, false
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// HandleBet handles /bet <amount>: enter matchmaking with a stake.
func (h *GameHandler) HandleBet(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	bet, ok := parseAmount(c)
	if !ok {
		return c.Reply("Usage: /bet <amount>")
	}

	result, err := h.game.StartGame(ctx, sender.ID, bet)
	if err != nil {
		return h.replyGameError(c, err)
	}

	if result.Matched {
		return c.Reply(fmt.Sprintf(
			"⚔️ Opponent found! Lobby %s\n\nSend a 🎲 to roll!", result.LobbyID,
		))
	}
	return c.Reply(fmt.Sprintf(
		"🔎 Waiting for an opponent on %d coins...\n"+
			"Lobby: %s\n\n"+
			"Share the lobby ID so a friend can /join %s,\n"+
			"or /cancel to get your stake back.",
		bet, result.LobbyID, result.LobbyID,
	))
}

// HandleJoin handles /join <lobby>: join a specific open lobby at its
// stake.
func (h *GameHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /join <lobby>")
	}
	lobbyID := strings.TrimSpace(args[0])

	lobby, err := h.game.Lobby(ctx, lobbyID)
	if err != nil {
		return h.replyGameError(c, err)
	}
	if lobby.State != model.LobbyOpen {
		return c.Reply("❌ That lobby is not open for joining")
	}

	result, err := h.game.JoinByLink(ctx, lobbyID, sender.ID, lobby.Bet)
	if err != nil {
		return h.replyGameError(c, err)
	}

	return c.Reply(fmt.Sprintf(
		"⚔️ Joined lobby %s for %d coins.\n\nSend a 🎲 to roll!",
		result.LobbyID, lobby.Bet,
	))
}

// HandleCancel handles /cancel: abandon the open lobby the user waits
// in and refund the stake.
func (h *GameHandler) HandleCancel(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	lobby, err := h.game.ActiveLobby(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, repository.ErrLobbyNotFound) {
			return c.Reply("ℹ️ You are not waiting in any lobby")
		}
		return c.Reply("❌ Something went wrong, please try again later")
	}

	if err := h.game.CancelFind(ctx, sender.ID, lobby.ID); err != nil {
		return h.replyGameError(c, err)
	}
	return c.Reply("✅ Matchmaking cancelled, your stake is back")
}

// HandleLeave handles /leave <lobby>: release a settled lobby.
func (h *GameHandler) HandleLeave(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /leave <lobby>")
	}

	if err := h.game.LeaveAfterSettlement(ctx, sender.ID, strings.TrimSpace(args[0])); err != nil {
		return h.replyGameError(c, err)
	}
	return c.Reply("👋 Lobby released")
}

// HandleResult handles /result <lobby>: show the settled outcome.
func (h *GameHandler) HandleResult(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /result <lobby>")
	}

	info, err := h.game.GetResult(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		if errors.Is(err, service.ErrNotReady) {
			return c.Reply("⏳ This round is not finished yet")
		}
		return h.replyGameError(c, err)
	}

	if info.Draw {
		return c.Reply(fmt.Sprintf(
			"🤝 Draw! Both rolled %d, stakes refunded", info.Roll1,
		))
	}
	return c.Reply(fmt.Sprintf(
		"🏆 Winner: %d\n🎲 %d rolled %d, %d rolled %d",
		info.WinnerID, info.Player1, info.Roll1, info.Player2, info.Roll2,
	))
}

// HandleDice handles an incoming 🎲 message: the rolled value is the
// sender's submission for their active lobby.
func (h *GameHandler) HandleDice(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	msg := c.Message()
	if sender == nil || msg == nil || msg.Dice == nil || msg.Dice.Type != "🎲" {
		return nil
	}

	lobby, err := h.game.ActiveLobby(ctx, sender.ID)
	if err != nil {
		// Rolls outside a game are just chatter
		return nil
	}
	if lobby.State != model.LobbyActive {
		return c.Reply("⏳ Still waiting for an opponent, hold your roll")
	}

	outcome, err := h.game.SubmitResult(ctx, sender.ID, lobby.ID, msg.Dice.Value)
	if err != nil {
		return h.replyGameError(c, err)
	}

	if !outcome.Settled {
		return c.Reply(fmt.Sprintf("🎲 You rolled %d, waiting for your opponent...", msg.Dice.Value))
	}
	if outcome.Draw {
		return c.Reply("🤝 Draw! Stakes refunded to both players")
	}
	return c.Reply(fmt.Sprintf("🏁 Round over! Winner: %d takes the pot", outcome.WinnerID))
}

// replyGameError formats known game errors for the chat.
func (h *GameHandler) replyGameError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotRegistered):
		return c.Reply("ℹ️ You are not registered yet, send /start first")
	case errors.Is(err, service.ErrInvalidBet):
		return c.Reply("❌ Invalid bet amount")
	case errors.Is(err, service.ErrInvalidRoll):
		return c.Reply("❌ Invalid roll")
	case errors.Is(err, repository.ErrInsufficientFunds):
		return c.Reply("💸 Not enough coins for that stake")
	case errors.Is(err, service.ErrCapacityExhausted):
		return c.Reply("🈵 All lobbies are busy, try again in a moment")
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrNotParticipant):
		return c.Reply("❌ That lobby is not available for this action")
	case errors.Is(err, repository.ErrLobbyNotFound):
		return c.Reply("❌ No such lobby")
	case errors.Is(err, service.ErrPaymentGateway):
		return c.Reply("⚠️ Payout is delayed, please retry your roll shortly")
	default:
		return c.Reply("❌ Something went wrong, please try again later")
	}
}
