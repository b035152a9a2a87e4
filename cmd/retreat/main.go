// Command retreat plays a guided retreat in the terminal against a sages
// backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	server   string
	user     string
	prefs    string
	logFile  string
	logLevel string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:           "retreat",
		Short:         "Guided micro-retreats in your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.server, "server", "", "Backend base URL (default from saved preferences)")
	pf.StringVar(&g.user, "user", "", "User identity sent to the backend")
	pf.StringVar(&g.prefs, "prefs", "", "Preferences file (default in the user config dir)")
	pf.StringVar(&g.logFile, "log-file", "", "Write logs to this file; logging is off otherwise")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		playCmd(&g),
		listCmd(&g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "retreat version %s\n", version)
			},
		},
	)

	return cmd
}
