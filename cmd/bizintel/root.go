package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
)

var cfg *config.Config

// exitCode is the process exit status for runs that completed without an
// operational error: 0 all good, 1 extraction failed, 130 interrupted.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "bizintel",
	Short: "Company business-intelligence extraction pipeline",
	Long:  "Crawls company websites, selects high-signal pages, extracts a structured business profile via Claude models, and embeds it for similarity search.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}
