package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/topology"
)

var topologyFlags struct {
	sbase float64
	vbase float64
}

var topologyCmd = &cobra.Command{
	Use:   "topology <case.m>",
	Short: "Print the buses and lines of a case file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := topology.ParseFile(args[0])
		if err != nil {
			return err
		}
		net, err := grid.Build(topo, grid.Base{SBaseMVA: topologyFlags.sbase, VBaseKV: topologyFlags.vbase}, grid.BuildOptions{})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d buses, %d lines", len(net.Buses), len(net.Lines))
		if topo.Dropped > 0 {
			fmt.Fprintf(out, ", %d out-of-service branches dropped", topo.Dropped)
		}
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "line\tr_ohm\tx_ohm\tmax_i_ka")
		for _, l := range net.Lines {
			fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.3f\n", l.Name, l.ROhm, l.XOhm, l.MaxIkA)
		}
		return w.Flush()
	},
}

func init() {
	topologyCmd.Flags().Float64Var(&topologyFlags.sbase, "sbase", 100, "base power in MVA")
	topologyCmd.Flags().Float64Var(&topologyFlags.vbase, "vbase", 12.66, "base voltage in kV")
	rootCmd.AddCommand(topologyCmd)
}
