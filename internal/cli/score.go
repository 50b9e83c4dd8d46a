package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	DryRun  bool
	History int
}

// scoreReport is the JSON printed by the score command.
type scoreReport struct {
	service.Result
	Trend   model.Trend               `json:"trend"`
	History []model.ScoreHistoryEntry `json:"history,omitempty"`
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score <user-id>",
		Short: "Compute a user's commitment score against the configured store",
		Long: `Recompute the commitment score for one user directly against the
configured store and print it as JSON. Without --dry-run the result is
recorded: the user's score, the score history and the trend all update.

Example:
  SKILLSYNC_STORE_DRIVER=sqlite skillsync score 6f1c... --history 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, opts.Config)
			if err != nil {
				return fmt.Errorf("open %s store: %w", opts.Config.StoreDriver, err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Get().Warn(ctx, "store close failed", logger.Error(err))
				}
			}()

			engine := service.NewEngine(store,
				service.WithHistoryLimit(opts.Config.HistoryLimit),
				service.WithEngineLogger(logger.Named("engine")),
			)

			userID := args[0]
			compute := engine.ComputeScore
			if opts.DryRun {
				compute = engine.DeriveScore
			}
			res, err := compute(ctx, userID)
			if err != nil {
				return fmt.Errorf("score %s: %w", userID, err)
			}
			switch {
			case res.UsedFallback:
				logger.Get().Warn(ctx, "inputs unavailable; reporting neutral score",
					logger.String("user_id", userID), logger.Error(res.Err))
			case res.Err != nil:
				return fmt.Errorf("record score %s: %w", userID, res.Err)
			}

			report := scoreReport{Result: res}
			if report.Trend, err = engine.GetTrend(ctx, userID); err != nil {
				return fmt.Errorf("trend %s: %w", userID, err)
			}
			if opts.History > 0 {
				if report.History, err = engine.GetHistory(ctx, userID, opts.History); err != nil {
					return fmt.Errorf("history %s: %w", userID, err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute without recording")
	cmd.Flags().IntVar(&opts.History, "history", 0, "include the most recent N history entries")
	return cmd
}
