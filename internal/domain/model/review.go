package model

import "time"

// PeerReview is one member's rating of another within a project.
// At most one exists per (ReviewerID, ReviewedUserID, ProjectID).
type PeerReview struct {
	ID             string    `json:"id"`
	ReviewerID     string    `json:"reviewerId"`
	ReviewedUserID string    `json:"reviewedUserId"`
	ProjectID      string    `json:"projectId"`
	Score          int       `json:"score"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
