package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courtboard/internal/app"
	"courtboard/internal/auth"
	"courtboard/internal/identity"
	"courtboard/internal/profile"
)

// NewProfileCommand creates the profile command and its subcommands.
func NewProfileCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Read or set display names and skill levels",
	}
	cmd.AddCommand(newProfileGetCommand(opts))
	cmd.AddCommand(newProfileSetCommand(opts))
	return cmd
}

func newProfileGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get [user]",
		Short:         "Show a profile (default: yours)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				userID := opts.User
				if len(args) == 1 {
					userID = args[0]
				}
				if err := identity.Check(userID); err != nil {
					return err
				}
				p, err := a.Backends.Profiles.Lookup(ctx, userID)
				if errors.Is(err, profile.ErrNotFound) {
					return WrapExitError(ExitFailure, "no profile for "+userID, err)
				}
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(p, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s (level %d)\n", userID, p.Name, p.Level)
				})
			})
		},
	}
}

func newProfileSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <level>",
		Short: "Set your display name and skill level (1-5)",
		Example: `  courtctl --user u1 profile set Ada 3
  courtctl --user u2 profile set "Bo Diddley" 2`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("level %q is not a number", args[1]))
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				userID, err := identity.UserID(ctx)
				if err != nil {
					return err
				}
				p := profile.Profile{Name: strings.TrimSpace(args[0]), Level: level}
				if err := a.Backends.Profiles.Save(ctx, userID, p); err != nil {
					return err
				}
				a.Aggregator.Names().Remember(userID, p.Name)
				return opts.formatter(cmd).Success(p, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s (level %d)\n", userID, p.Name, p.Level)
				})
			})
		},
	}
}

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
		Use:   "token",
		Short: "Issue an API bearer token for --user",
		Long: `Issue an API bearer token for --user, signed with JWT_SIGNING_KEY.

Example:
  curl -H "Authorization: Bearer $(courtctl --user u1 token)" localhost:8081/v1/days/today/attendance`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				userID, err := identity.UserID(ctx)
				if err != nil {
					return err
				}
				ttl := opts.TTL
				if ttl <= 0 {
					ttl = a.Config.AccessTTL
				}
				tok, err := auth.Issue(identity.User{ID: userID, Name: opts.Name}, a.Config.JWTIssuer, a.Config.JWTSigningKey, ttl, a.Clock.Now())
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(tok, func(w io.Writer) {
					fmt.Fprintln(w, tok.Value)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name to embed in the token")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default ACCESS_TTL)")

	return cmd
}

// NewFeedbackCommand creates the feedback command.
func NewFeedbackCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "feedback <text>...",
		Short:         "Send feedback to the organizers",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Feedback.Submit(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "thanks! (%s)\n", id)
				})
			})
		},
	}
}
