package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/avntro/mission-control/internal/logging"
	"github.com/avntro/mission-control/internal/ui"
	"github.com/avntro/mission-control/poller"
	"github.com/avntro/mission-control/task"
)

var (
	watchAgent    string
	watchExpand   []string
	watchLogLevel string
)

const watchHelp = "commands: r refresh | e <lane> expand/collapse | a [agent] filter feed | d <id> delete | q quit"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard in the terminal",
	Long: `watch polls the server and redraws the board, the agent panel and the
activity feed in place. Type a command and press enter:

  r            refresh now
  e <lane>     expand or collapse todo, in_progress, review or done
  a [agent]    filter the feed to one agent, or clear the filter
  d <id>       delete a task (asks first)
  q            quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		return watch(ctx, cancel, os.Stdin, os.Stdout)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAgent, "agent", "", "start with the feed filtered to this agent")
	watchCmd.Flags().StringSliceVar(&watchExpand, "expand", nil, "lanes to start expanded")
	watchCmd.Flags().StringVar(&watchLogLevel, "log-level", "error", "log level for poll failures on stderr")
	rootCmd.AddCommand(watchCmd)
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 120
}

func watch(ctx context.Context, cancel context.CancelFunc, in io.Reader, out io.Writer) error {
	prompt := newPrompter(in, out)

	var mu sync.Mutex
	doc := poller.NewDocument()
	doc.OnApply(func(d *poller.Document) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprintln(out, ui.Board(d, terminalWidth()))
		fmt.Fprintln(out, ui.StyleSubtle.Render(watchHelp))
	})

	p := poller.New(client, doc, poller.Options{
		PollInterval:   cfg.Poller.PollInterval,
		TickInterval:   cfg.Poller.TickInterval,
		WorkspaceCheck: cfg.Poller.WorkspaceCheck,
		LaneCap:        cfg.Poller.LaneCap,
		FeedLimit:      cfg.Poller.FeedLimit,
		Logger:         logging.New(logging.Options{Level: watchLogLevel, Format: "text", Component: "watch"}),
		Confirmer:      prompt,
	})
	for _, l := range watchExpand {
		st := task.Status(strings.TrimSpace(l))
		if !st.Valid() {
			return fmt.Errorf("unknown lane %q", l)
		}
		p.ToggleLane(ctx, st)
	}
	if watchAgent != "" {
		p.SetAgentFilter(ctx, watchAgent)
	}

	go readCommands(ctx, cancel, p, prompt, out)
	return p.Run(ctx)
}

// readCommands drives p from line input until q, EOF or ctx is done.
func readCommands(ctx context.Context, cancel context.CancelFunc, p *poller.Poller, prompt *prompter, out io.Writer) {
	defer cancel()
	for prompt.in.Scan() {
		fields := strings.Fields(prompt.in.Text())
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		switch fields[0] {
		case "q", "quit":
			return
		case "r":
			p.Refresh()
		case "e":
			st := task.Status(arg)
			if !st.Valid() {
				fmt.Fprintf(out, "unknown lane %q\n", arg)
				continue
			}
			p.ToggleLane(ctx, st)
		case "a":
			p.SetAgentFilter(ctx, arg)
		case "d":
			if arg == "" {
				fmt.Fprintln(out, "usage: d <task-id>")
				continue
			}
			if _, err := p.DeleteTask(ctx, arg); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		default:
			fmt.Fprintln(out, watchHelp)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
