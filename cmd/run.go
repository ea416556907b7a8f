package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/hostcap/app"
	"github.com/kilianp07/hostcap/config"
	"github.com/kilianp07/hostcap/infra/logger"
)

var runFlags struct {
	day    string
	out    string
	resume bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute alpha* for every timestamp and write the artifacts",
	RunE:  run,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.day, "day", "", "restrict the run to one UTC day (YYYY-MM-DD)")
	runCmd.Flags().StringVarP(&runFlags.out, "out", "o", "", "output directory")
	runCmd.Flags().BoolVar(&runFlags.resume, "resume", false, "continue from the checkpoint")
	rootCmd.AddCommand(runCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("day") {
		cfg.Data.RunDay = runFlags.day
	}
	if cmd.Flags().Changed("out") {
		cfg.Output.Dir = runFlags.out
	}
	if cmd.Flags().Changed("resume") {
		cfg.Checkpoint.Resume = runFlags.resume
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	rep, err := svc.Run(ctx)
	if err != nil && errors.Is(err, ctx.Err()) && rep != nil {
		logger.New("main").Warnf("interrupted after %d steps, partial results written to %s", len(rep.Steps), cfg.Output.Dir)
	}
	return err
}
