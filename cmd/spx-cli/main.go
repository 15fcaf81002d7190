// spx-cli runs SMA crossover backtests and manages the S&P 500 price store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"spxlab/internal/app"
	"spxlab/internal/config"
	"spxlab/internal/util"
)

var (
	version   = "0.1.0"
	cfgPath   string
	serverURL string
	logLevel  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "spx-cli",
		Short:         "S&P 500 moving-average backtester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $SPXLAB_CONFIG or config/spxlab.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "query a running spx-server instead of local data")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for local runs")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(backtestCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(exportCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("spx-cli %s\n", version)
		},
	}
}

// openApp loads config and opens the local stores.
func openApp(ctx context.Context) (*app.App, error) {
	path := "config/spxlab.yaml"
	if p := os.Getenv("SPXLAB_CONFIG"); p != "" {
		path = p
	}
	if cfgPath != "" {
		path = cfgPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := util.NewLogger(os.Stderr, logLevel, "text")
	util.SetDefault(logger)
	return app.Open(ctx, cfg, logger)
}
