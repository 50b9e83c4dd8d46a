// Package scoring derives commitment scores from task history and peer reviews.
//
// Everything here is pure: callers load the inputs and persist the result.
package scoring

import (
	"math"
	"sort"

	"github.com/okian/skillsync/internal/domain/model"
)

// Weights of the three sub-metrics. Fixed; they are not configurable at runtime.
const (
	WeightOnTime     = 0.5
	WeightCompletion = 0.3
	WeightPeerReview = 0.2
)

// Defaults used when a signal has no history.
const (
	DefaultOnTimeRate      = 100 // no completed tasks: no lateness penalty
	DefaultCompletionRate  = 0   // no assigned tasks
	DefaultPeerReviewScore = 75  // no reviews: neutral-positive
	FallbackScore          = model.DefaultCommitmentScore

	// ReviewWindow is how many of the most recent reviews are averaged.
	ReviewWindow = 10

	minScore = 0
	maxScore = 100
)

// Inputs are the raw signals for one user.
type Inputs struct {
	Tasks   []model.Task
	Reviews []model.PeerReview
}

// Score is a derived commitment score with its breakdown.
type Score struct {
	Value     int
	Breakdown model.Breakdown
}

// Derive computes the commitment score for in.
func Derive(in Inputs) Score {
	b := model.Breakdown{
		OnTimeRate:      OnTimeRate(in.Tasks),
		CompletionRate:  CompletionRate(in.Tasks),
		PeerReviewScore: PeerReviewScore(in.Reviews),
	}
	return Score{Value: Combine(b), Breakdown: b}
}

// Combine weights a breakdown into a single 0..100 integer.
func Combine(b model.Breakdown) int {
	raw := float64(b.OnTimeRate)*WeightOnTime +
		float64(b.CompletionRate)*WeightCompletion +
		float64(b.PeerReviewScore)*WeightPeerReview
	return clamp(RoundHalfUp(raw))
}

// OnTimeRate is the percentage of completed tasks finished by their deadline.
// A completed task missing its deadline or completion time counts as late.
func OnTimeRate(tasks []model.Task) int {
	completed, onTime := 0, 0
	for i := range tasks {
		if tasks[i].Status != model.StatusCompleted {
			continue
		}
		completed++
		if tasks[i].OnTime() {
			onTime++
		}
	}
	if completed == 0 {
		return DefaultOnTimeRate
	}
	return percent(onTime, completed)
}

// CompletionRate is the percentage of assigned tasks that are completed.
func CompletionRate(tasks []model.Task) int {
	if len(tasks) == 0 {
		return DefaultCompletionRate
	}
	completed := 0
	for i := range tasks {
		if tasks[i].Status == model.StatusCompleted {
			completed++
		}
	}
	return percent(completed, len(tasks))
}

// PeerReviewScore averages the ReviewWindow most recent review scores.
func PeerReviewScore(reviews []model.PeerReview) int {
	if len(reviews) == 0 {
		return DefaultPeerReviewScore
	}
	recent := make([]model.PeerReview, len(reviews))
	copy(recent, reviews)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > ReviewWindow {
		recent = recent[:ReviewWindow]
	}
	sum := 0
	for _, r := range recent {
		sum += ClampReview(r.Score)
	}
	return clamp(RoundHalfUp(float64(sum) / float64(len(recent))))
}

// ClampReview bounds a submitted review score to 0..100.
func ClampReview(score int) int {
	return clamp(score)
}

// RoundHalfUp rounds x to the nearest integer, halves away from zero for
// non-negative inputs (69.5 -> 70).
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func percent(part, whole int) int {
	return RoundHalfUp(100 * float64(part) / float64(whole))
}

func clamp(v int) int {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}
