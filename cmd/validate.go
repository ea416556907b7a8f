package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/hostcap/app"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the topology and time series without simulating",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		svc, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()
		plan, err := svc.Prepare()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "network: %d buses, %d lines\n", len(plan.Network.Buses), len(plan.Network.Lines))
		for _, site := range plan.Assign {
			fmt.Fprintf(out, "%s -> bus %d\n", site.Source, site.Bus)
		}
		for _, r := range plan.Sources {
			unit := "p.u."
			if r.KW {
				unit = "kW"
			}
			fmt.Fprintf(out, "source %s: column %q, peak %.3f %s\n", r.Ref, r.Column, r.Peak, unit)
		}
		if n := plan.Load.Len(); n > 0 {
			fmt.Fprintf(out, "steps: %d from %s to %s\n", n,
				plan.Load.Index[0].Format("2006-01-02 15:04"), plan.Load.Index[n-1].Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&runFlags.day, "day", "", "restrict to one UTC day (YYYY-MM-DD)")
	rootCmd.AddCommand(validateCmd)
}
