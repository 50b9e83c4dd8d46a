// Package types contains response shapes shared by the service and the API.
package types

import (
	"time"

	"github.com/okian/skillsync/internal/domain/model"
)

// LeaderboardEntry is one row of the commitment leaderboard.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// ScoreView is a user's score as returned to clients.
type ScoreView struct {
	UserID       string          `json:"userId"`
	Score        int             `json:"score"`
	Breakdown    model.Breakdown `json:"breakdown"`
	UsedFallback bool            `json:"usedFallback"`
	Trend        model.Trend     `json:"trend,omitempty"`
	ComputedAt   time.Time       `json:"computedAt"`
}

// Rank assigns 1-based ranks to users already sorted by score.
func Rank(users []model.User) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		out[i] = LeaderboardEntry{Rank: i + 1, UserID: u.ID, Name: u.Name, Score: u.CommitmentScore}
	}
	return out
}
