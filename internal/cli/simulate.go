package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/skillsync/internal/simulate"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	URL      string
	Clients  int
	Messages int
	Project  string
	Timeout  time.Duration
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with several sync clients",
		Long: `Connect several simulated users to a running server, have them chat
and move tasks in one project room, and verify that every event reaches
every other member exactly once. Tokens are signed with the configured
jwt_secret; leave it empty against a server running without one.

Example:
  skillsync simulate --url http://localhost:9080 --clients 8 --messages 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := simulate.Run(cmd.Context(), simulate.Config{
				BaseURL:   opts.URL,
				Clients:   opts.Clients,
				Project:   opts.Project,
				Messages:  opts.Messages,
				Timeout:   opts.Timeout,
				JWTSecret: opts.Config.JWTSecret,
				Verbose:   opts.Verbose,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"ok: %d clients, %d messages sent, %d received, %d task updates, %d moves in %s\n",
				stats.Clients, stats.MessagesSent, stats.MessagesReceived,
				stats.TaskUpdates, stats.Moves, stats.Duration.Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:9080", "server base URL")
	cmd.Flags().IntVar(&opts.Clients, "clients", simulate.DefaultClients, "simulated users (at least 2)")
	cmd.Flags().IntVar(&opts.Messages, "messages", simulate.DefaultMessages, "chat messages per user")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project room (default: a fresh sim-* id)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", simulate.DefaultTimeout, "per-phase deadline")
	return cmd
}
