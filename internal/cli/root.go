// Package cli builds the skillsync command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/skillsync/internal/config"
	"github.com/okian/skillsync/pkg/logger"
)

// RootOptions holds state shared by every command.
type RootOptions struct {
	Verbose bool
	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "skillsync",
		Short: "SkillSync commitment scores and realtime project rooms",
		Long: `SkillSync scores how reliably team members deliver (on-time rate,
completion rate and peer reviews) and keeps project members in sync over
websocket rooms.

Configuration is read from defaults, the YAML file named by SKILLSYNC_CONFIG,
a .env file and SKILLSYNC_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			level := cfg.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			if err := logger.SetLevelString(level); err != nil {
				logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
					logger.String("log_level", level), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}
