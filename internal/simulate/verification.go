package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
)

// settle is how long counters must stay put after reaching their target.
const settle = 200 * time.Millisecond

// verify checks that every client got each peer message exactly once and
// every task update exactly once.
//
// Per client, task:update arrives once per task created (server broadcast),
// once per persisted move (server broadcast) and once per peer's board
// broadcast of a move; a client's own board broadcast is not echoed.
func verify(ctx context.Context, cfg Config, parts []*participant, stats *Stats) error {
	n := int64(cfg.Clients)
	wantMessages := (n - 1) * int64(cfg.Messages)
	movesPer := int64(2)
	wantUpdates := n + n*movesPer + (n-1)*movesPer

	err := waitFor(ctx, cfg.Timeout, func() bool {
		for _, p := range parts {
			if p.messages.Load() < wantMessages || p.updates.Load() < wantUpdates {
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("fan-out incomplete: %w (%s)", err, counters(parts))
	}
	time.Sleep(settle)

	log := logger.Get().Named("simulate")
	for _, p := range parts {
		msgs, ups := p.messages.Load(), p.updates.Load()
		if cfg.Verbose {
			log.Info(ctx, "client counters",
				logger.String("user", p.user.Name),
				logger.Int("messages", int(msgs)),
				logger.Int("taskUpdates", int(ups)),
			)
		}
		if msgs != wantMessages {
			return fmt.Errorf("%s received %d messages, want exactly %d", p.user.Name, msgs, wantMessages)
		}
		if ups != wantUpdates {
			return fmt.Errorf("%s received %d task updates, want exactly %d", p.user.Name, ups, wantUpdates)
		}
		stats.MessagesReceived += int(msgs)
		stats.TaskUpdates += int(ups)
	}
	return nil
}

func counters(parts []*participant) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d/%d", p.user.Name, p.messages.Load(), p.updates.Load())
	}
	return s
}

// verifyLeaderboardSorted checks ranks are consecutive and scores never
// increase down the board.
func verifyLeaderboardSorted(rows []types.LeaderboardEntry) error {
	if len(rows) == 0 {
		return fmt.Errorf("empty leaderboard")
	}
	for i, r := range rows {
		if r.Rank != i+1 {
			return fmt.Errorf("leaderboard entry %d has rank %d", i, r.Rank)
		}
		if i > 0 && r.Score > rows[i-1].Score {
			return fmt.Errorf("leaderboard not properly sorted: entry %d has higher score than entry %d", i, i-1)
		}
	}
	return nil
}
