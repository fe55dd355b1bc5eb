package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"ludice-backend/internal/model"
	"ludice-backend/internal/service"
)

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	ranking *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(ranking *service.RankingService) *RankingHandler {
	return &RankingHandler{ranking: ranking}
}

// HandleTopGames handles /top_games: most active players.
func (h *RankingHandler) HandleTopGames(c tele.Context) error {
	entries, err := h.ranking.TopByGames(context.Background(), 10)
	if err != nil {
		return c.Reply("❌ Could not build the leaderboard, please try again later")
	}
	return c.Reply(formatLeaderboard("🎲 Most games played", entries, func(e *model.LeaderboardEntry) string {
		return fmt.Sprintf("%d games", e.TotalGames)
	}))
}

// HandleTopWinRate handles /top_winrate: best win percentage.
func (h *RankingHandler) HandleTopWinRate(c tele.Context) error {
	entries, err := h.ranking.TopByWinRate(context.Background(), 10)
	if err != nil {
		return c.Reply("❌ Could not build the leaderboard, please try again later")
	}
	return c.Reply(formatLeaderboard("🏆 Best win rate", entries, func(e *model.LeaderboardEntry) string {
		return fmt.Sprintf("%.1f%% (%d/%d)", e.WinRate, e.Wins, e.TotalGames)
	}))
}

func formatLeaderboard(title string, entries []*model.LeaderboardEntry, stat func(*model.LeaderboardEntry) string) string {
	if len(entries) == 0 {
		return "📊 Nothing to rank yet"
	}

	msg := title + " TOP 10\n━━━━━━━━━━━━━━━\n"
	medals := []string{"🥇", "🥈", "🥉"}
	for i, e := range entries {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}

		name := e.Username
		if name == "" {
			name = fmt.Sprintf("User%d", e.UserID)
		}
		msg += fmt.Sprintf("%s @%s: %s\n", rank, name, stat(e))
	}
	return msg + "━━━━━━━━━━━━━━━"
}
