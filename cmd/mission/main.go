// Command mission is the Mission Control CLI client.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avntro/mission-control/config"
	"github.com/avntro/mission-control/internal/version"
	"github.com/avntro/mission-control/poller"
)

var (
	cfgFile   string
	serverURL string

	cfg    *config.Config
	client *poller.Client
)

var rootCmd = &cobra.Command{
	Use:           "mission",
	Short:         "Mission Control CLI",
	Long:          "mission talks to a running missiond: list and edit tasks, inspect agents, and watch the live board.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if serverURL == "" {
			serverURL = cfg.Poller.ServerURL
		}
		client = poller.NewClient(serverURL)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mission %s\n", version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default: poller.server_url or $MC_SERVER)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// --- helpers ---

// prompter asks yes/no questions on a line-oriented input shared with the
// rest of the command.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// Confirm returns true only for an explicit "y" or "yes".
func (p *prompter) Confirm(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	if !p.in.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(p.in.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
