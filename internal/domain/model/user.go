package model

import "time"

// DefaultCommitmentScore is assigned at registration.
const DefaultCommitmentScore = 50

// ScorePoint is one sample of a user's score series.
type ScorePoint struct {
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// User is a SkillSync member. CommitmentScore is written only by the score engine.
type User struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	CommitmentScore int          `json:"commitmentScore"`
	ScoreHistory    []ScorePoint `json:"scoreHistory,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}
