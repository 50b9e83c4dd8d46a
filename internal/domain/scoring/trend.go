package scoring

import "github.com/okian/skillsync/internal/domain/model"

// Trend window sizes and threshold.
const (
	TrendHistory   = 7 // most recent entries considered
	TrendWindow    = 3 // size of the recent and older windows
	TrendThreshold = 5 // average difference needed to call a direction
)

// Trend classifies chronological scores (oldest first).
func Trend(scores []int) model.Trend {
	if len(scores) > TrendHistory {
		scores = scores[len(scores)-TrendHistory:]
	}
	if len(scores) < 2 {
		return model.TrendStable
	}

	split := len(scores) - TrendWindow
	if split < 0 {
		split = 0
	}
	recent := scores[split:]
	olderStart := split - TrendWindow
	if olderStart < 0 {
		olderStart = 0
	}
	older := scores[olderStart:split]
	if len(older) == 0 {
		return model.TrendStable
	}

	diff := mean(recent) - mean(older)
	switch {
	case diff > TrendThreshold:
		return model.TrendUp
	case diff < -TrendThreshold:
		return model.TrendDown
	default:
		return model.TrendStable
	}
}

func mean(xs []int) float64 {
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
