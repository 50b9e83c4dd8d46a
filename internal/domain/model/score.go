package model

import "time"

// Breakdown holds the three sub-metrics behind a commitment score, each 0..100.
type Breakdown struct {
	OnTimeRate      int `json:"onTimeRate"`
	CompletionRate  int `json:"completionRate"`
	PeerReviewScore int `json:"peerReviewScore"`
}

// ScoreHistoryEntry is an append-only record of one score computation.
type ScoreHistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	Timestamp time.Time `json:"timestamp"`
}

// Trend is the direction of a user's recent scores.
type Trend string

// Trend values.
const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// RecomputeJob asks the background workers to refresh a user's score.
type RecomputeJob struct {
	UserID     string
	Reason     string
	EnqueuedAt time.Time
}
