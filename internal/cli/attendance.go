package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"courtboard/internal/app"
	"courtboard/internal/attendance"
)

// NewDeclareCommand creates the declare command.
func NewDeclareCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "declare <day> <going|maybe|notDecided>",
		Short: "Declare whether you are coming on a day",
		Long: `Declare whether you are coming on a day. A new declaration replaces
the previous one.

Example:
  courtctl --user u1 declare 2024-07-15 going
  courtctl --user u1 declare today maybe`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				day, err := parseDay(a, args[0])
				if err != nil {
					return err
				}
				status, err := attendance.ParseStatus(args[1])
				if err != nil {
					return err
				}
				if err := a.Actions.Declare(ctx, day, status); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]any{"day": day, "status": status}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s\n", day, status)
				})
			})
		},
	}
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "withdraw <day>",
		Short:         "Remove your declaration and leave every slot of a day",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				day, err := parseDay(a, args[0])
				if err != nil {
					return err
				}
				if err := a.Actions.Withdraw(ctx, day); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]any{"day": day, "status": attendance.StatusNotDecided}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: withdrawn\n", day)
				})
			})
		},
	}
}

// NewJoinCommand creates the join command.
func NewJoinCommand(opts *RootOptions) *cobra.Command {
	return slotCommand(opts, true)
}

// NewLeaveCommand creates the leave command.
func NewLeaveCommand(opts *RootOptions) *cobra.Command {
	return slotCommand(opts, false)
}

func slotCommand(opts *RootOptions, join bool) *cobra.Command {
	use, short, done := "join", "Join a time slot", "joined"
	if !join {
		use, short, done = "leave", "Leave a time slot", "left"
	}
	return &cobra.Command{
		Use:           use + " <day> <slot>",
		Short:         short,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				day, err := parseDay(a, args[0])
				if err != nil {
					return err
				}
				slot := args[1]
				if join {
					err = a.Actions.Join(ctx, day, slot)
				} else {
					err = a.Actions.Leave(ctx, day, slot)
				}
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]any{"day": day, "slot": slot, "joined": join}, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s: %s\n", day, slot, done)
				})
			})
		},
	}
}
