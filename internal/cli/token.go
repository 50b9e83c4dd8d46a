package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/skillsync/internal/auth"
)

// errNoSecret is returned when a token is requested without jwt_secret.
var errNoSecret = errors.New("jwt_secret is not configured; the server trusts user_id parameters")

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Name string
	TTL  time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Long: `Sign a JWT for the given user with the configured jwt_secret. Use it as
an Authorization: Bearer header or the token query parameter on /ws.

Example:
  SKILLSYNC_JWT_SECRET=s3cret skillsync token 6f1c... --name Ada`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authn := auth.New(opts.Config.JWTSecret, opts.TTL)
			if authn.DevMode() {
				return errNoSecret
			}
			tok, err := authn.Issue(args[0], opts.Name)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name carried in the token")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default one week)")
	return cmd
}
