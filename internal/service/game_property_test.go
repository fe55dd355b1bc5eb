// Property-based tests for winner computation and ranking helpers.
package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"ludice-backend/internal/model"
)

// TestDecideWinnerProperty: the higher roll always wins, equal rolls
// always draw, and the winner is always one of the two players.
func TestDecideWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roll1 := rapid.IntRange(1, 6).Draw(t, "roll1")
		roll2 := rapid.IntRange(1, 6).Draw(t, "roll2")
		player1 := rapid.Int64Range(1, 1000000).Draw(t, "player1")
		player2 := rapid.Int64Range(1000001, 2000000).Draw(t, "player2")

		winnerID, draw := decideWinner(roll1, roll2, player1, player2)

		if roll1 == roll2 {
			if !draw {
				t.Fatalf("equal rolls %d/%d must draw", roll1, roll2)
			}
			if winnerID != 0 {
				t.Fatalf("draw must carry no winner, got %d", winnerID)
			}
			return
		}

		if draw {
			t.Fatalf("unequal rolls %d/%d must not draw", roll1, roll2)
		}
		if roll1 > roll2 && winnerID != player1 {
			t.Fatalf("player1 rolled higher but winner is %d", winnerID)
		}
		if roll2 > roll1 && winnerID != player2 {
			t.Fatalf("player2 rolled higher but winner is %d", winnerID)
		}
	})
}

// TestDecideWinnerSymmetryProperty: swapping the players and rolls
// mirrors the outcome.
func TestDecideWinnerSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roll1 := rapid.IntRange(1, 6).Draw(t, "roll1")
		roll2 := rapid.IntRange(1, 6).Draw(t, "roll2")

		winnerA, drawA := decideWinner(roll1, roll2, 1, 2)
		winnerB, drawB := decideWinner(roll2, roll1, 2, 1)

		if drawA != drawB {
			t.Fatalf("draw not symmetric for rolls %d/%d", roll1, roll2)
		}
		if winnerA != winnerB {
			t.Fatalf("winner not symmetric for rolls %d/%d: %d vs %d", roll1, roll2, winnerA, winnerB)
		}
	})
}

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name       string
		roll1      int
		roll2      int
		wantWinner int64
		wantDraw   bool
	}{
		{"player1 wins", 6, 3, 1, false},
		{"player2 wins", 2, 5, 2, false},
		{"draw on equal rolls", 4, 4, 0, true},
		{"draw on snake eyes", 1, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winner, draw := decideWinner(tt.roll1, tt.roll2, 1, 2)
			assert.Equal(t, tt.wantWinner, winner)
			assert.Equal(t, tt.wantDraw, draw)
		})
	}
}

func TestSettledOutcome(t *testing.T) {
	winner := int64(42)
	lobby := &model.Lobby{WinnerID: &winner}
	out := settledOutcome(lobby)
	assert.True(t, out.Settled)
	assert.Equal(t, int64(42), out.WinnerID)
	assert.False(t, out.Draw)

	drawLobby := &model.Lobby{Draw: true}
	out = settledOutcome(drawLobby)
	assert.True(t, out.Settled)
	assert.Equal(t, int64(0), out.WinnerID)
	assert.True(t, out.Draw)
}

// TestWinRateProperty: win rate is always within [0, 100] and matches
// wins/totalGames.
func TestWinRateProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		totalGames := rapid.IntRange(0, 10000).Draw(t, "totalGames")
		wins := 0
		if totalGames > 0 {
			wins = rapid.IntRange(0, totalGames).Draw(t, "wins")
		}

		account := &model.Account{Wins: wins, TotalGames: totalGames}
		rate := account.WinRate()

		if rate < 0 || rate > 100 {
			t.Fatalf("win rate %f out of range", rate)
		}
		if totalGames == 0 && rate != 0 {
			t.Fatalf("no games must give rate 0, got %f", rate)
		}
		if totalGames > 0 {
			expected := float64(wins) / float64(totalGames) * 100
			if rate != expected {
				t.Fatalf("rate mismatch: expected %f, got %f", expected, rate)
			}
		}
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultLeaderboardSize, clampLimit(0))
	assert.Equal(t, defaultLeaderboardSize, clampLimit(-5))
	assert.Equal(t, defaultLeaderboardSize, clampLimit(101))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, 100, clampLimit(100))
}
