package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"courtboard/internal/app"
	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/presence"
)

// NewRosterCommand creates the roster command.
func NewRosterCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roster <day>",
		Short: "Print who is coming and who is in each slot",
		Long: `Print who is coming and who is in each slot.

Slots you have joined are marked with *.

Example:
  courtctl roster today
  courtctl --format json roster 2024-07-15`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				day, err := parseDay(a, args[0])
				if err != nil {
					return err
				}
				snap := a.Aggregator.Day(ctx, day, opts.User)
				return opts.formatter(cmd).Success(snap, func(w io.Writer) { writeSnapshot(w, snap) })
			})
		},
	}
}

// NewSlotsCommand creates the slots command.
func NewSlotsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "slots",
		Short:         "List the time slots of a day",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				slots := a.Aggregator.Catalog().Slots()
				return opts.formatter(cmd).Success(slots, func(w io.Writer) {
					for _, s := range slots {
						fmt.Fprintf(w, "%-12s %-6s %02d:00-%02d:00\n", s.Name, s.Label, s.Start, s.End)
					}
				})
			})
		},
	}
}

// LiveOptions holds flags for the live command.
type LiveOptions struct {
	*RootOptions
	Follow bool
}

// NewLiveCommand creates the live command.
func NewLiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "live",
		Short:         "Print how many people are in the current slot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)
				show := func(l presence.Live) {
					_ = out.Success(l, func(w io.Writer) { writeLive(w, l) })
				}
				if !opts.Follow {
					show(a.Aggregator.Live(ctx, a.Clock.Now()))
					return nil
				}
				a.NewLiveMonitor(show).Run(ctx)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep running and print every change")

	return cmd
}

func writeLive(w io.Writer, l presence.Live) {
	if !l.Active {
		fmt.Fprintf(w, "%s: no session right now\n", l.Day)
		return
	}
	fmt.Fprintf(w, "%s %s: %d at the courts\n", l.Day, l.Slot, l.Count)
}

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count       int
	Interactive bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <day>",
		Short: "Follow a day's board as it changes",
		Long: `Follow a day's board as it changes, printing a new board on every
change until interrupted.

With --interactive, commands read from stdin are applied to the board as
they arrive and show up in the next board before the store confirms them:

  going | maybe | notDecided   declare for the day
  withdraw                     remove the declaration and leave every slot
  join <slot> | leave <slot>   change slot membership

Watching ends when stdin is closed.

Example:
  courtctl --store redis watch today
  courtctl --store redis --user u1 watch today -i`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				day, err := parseDay(a, args[0])
				if err != nil {
					return err
				}
				return watch(ctx, a, opts, cmd, day)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "stop after this many boards (0 = until interrupted)")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "read board commands from stdin")

	return cmd
}

func watch(ctx context.Context, a *app.App, opts *WatchOptions, cmd *cobra.Command, day calendar.Day) error {
	updates := make(chan *presence.Snapshot, 1)
	board, err := presence.OpenBoard(ctx, a.Aggregator, a.Actions, day, opts.User, func(snap *presence.Snapshot) {
		if !snap.Ready {
			return
		}
		select {
		case <-updates:
		default:
		}
		updates <- snap
	})
	if err != nil {
		return err
	}
	defer board.Close()

	out := opts.formatter(cmd)
	var lines <-chan string
	if opts.Interactive {
		lines = readLines(ctx, cmd.InOrStdin())
	}
	for printed := 0; opts.Count == 0 || printed < opts.Count; {
		select {
		case snap := <-updates:
			out.VerboseLog("board version %d", snap.Version)
			if err := out.Success(snap, func(w io.Writer) {
				writeSnapshot(w, snap)
				fmt.Fprintln(w)
			}); err != nil {
				return err
			}
			printed++
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := apply(ctx, board, line); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", line, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// readLines sends every non-blank line of r and closes the channel at EOF.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// apply runs one interactive command against the board.
func apply(ctx context.Context, board *presence.Board, line string) error {
	fields := strings.Fields(line)
	switch verb := fields[0]; verb {
	case "withdraw":
		return board.Withdraw(ctx)
	case "join", "leave":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <slot>", verb)
		}
		if verb == "join" {
			return board.Join(ctx, fields[1])
		}
		return board.Leave(ctx, fields[1])
	default:
		status, err := attendance.ParseStatus(verb)
		if err != nil {
			return err
		}
		return board.Declare(ctx, status)
	}
}
