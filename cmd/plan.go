package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bvweerd/battery-controller/config"
	"github.com/bvweerd/battery-controller/core/battery"
	"github.com/bvweerd/battery-controller/core/forecast"
	"github.com/bvweerd/battery-controller/core/optimizer"
	"github.com/bvweerd/battery-controller/infra/logger"
	"github.com/bvweerd/battery-controller/pkg/export"
)

var (
	planSoCWh  float64
	planFormat string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning cycle offline and print the schedule",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().Float64Var(&planSoCWh, "soc", 0, "starting state of charge in Wh")
	planCmd.Flags().StringVar(&planFormat, "format", "json", "output format: json or csv")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	batt, err := battery.New(cfg.Battery)
	if err != nil {
		return err
	}
	opt, err := optimizer.New(batt, cfg.Optimizer, logger.New("plan-command"))
	if err != nil {
		return err
	}
	src := forecast.FileSource{
		Path: cfg.Forecast.File,
		Step: time.Duration(cfg.Forecast.StepMinutes) * time.Minute,
	}
	f, err := src.Forecast(cmd.Context())
	if err != nil {
		return fmt.Errorf("load forecast: %w", err)
	}
	sched, err := opt.Optimize(optimizer.Request{Forecast: f, StartSoCWh: planSoCWh})
	if err != nil {
		return err
	}

	switch planFormat {
	case "json":
		return export.WriteJSON(os.Stdout, sched)
	case "csv":
		return export.WriteCSV(os.Stdout, sched)
	default:
		return fmt.Errorf("unsupported format: %s", planFormat)
	}
}
