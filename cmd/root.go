// Package cmd hosts the CLI entrypoints.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bvweerd/battery-controller/app"
	"github.com/bvweerd/battery-controller/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "battery-controller",
	Short: "Cost-optimizing home battery controller",
	Long: `Plans the cheapest battery trajectory over a price and production
forecast and drives the battery toward it, balancing the house in between.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
