package service

import (
	"context"
	"fmt"

	"ludice-backend/internal/model"
	"ludice-backend/internal/repository"
)

const defaultLeaderboardSize = 10

// RankingService builds leaderboards from account statistics.
type RankingService struct {
	accountRepo *repository.AccountRepository
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(accountRepo *repository.AccountRepository) *RankingService {
	return &RankingService{accountRepo: accountRepo}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultLeaderboardSize
	}
	return limit
}

// TopByGames returns the most active players.
func (s *RankingService) TopByGames(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	entries, err := s.accountRepo.TopByGames(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to build games leaderboard: %w", err)
	}
	return entries, nil
}

// TopByWinRate returns the players with the best win percentage.
func (s *RankingService) TopByWinRate(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	entries, err := s.accountRepo.TopByWinRate(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to build win-rate leaderboard: %w", err)
	}
	return entries, nil
}
