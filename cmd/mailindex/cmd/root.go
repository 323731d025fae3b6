package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/calder/mailindex/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailindex",
	Short: "Read-only MCP access to the Apple Mail Envelope Index",
	Long: `mailindex exposes the metadata in Apple Mail's Envelope Index
database: search by subject, sender, account, and date, list accounts,
and inspect the store's schema. The store is always opened read-only.

The main entry point is the MCP server (mailindex mcp); the remaining
commands are local conveniences over the same queries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Logging goes to stderr so MCP stdio framing stays clean.
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger.Debug("configuration resolved",
			"mail_dir", cfg.Mail.Dir,
			"mail_version", cfg.Mail.Version,
			"store", cfg.StorePath(),
		)
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.mailindex/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
