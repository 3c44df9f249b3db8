package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newLossesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "losses",
		Short: "Print the loss model used for estimates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, m, err := opts.tracerOptions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, m)
			}

			fmt.Fprintln(out, "fiber attenuation (dB/km)")
			for _, k := range sortedKeys(m.PerKmDb) {
				fmt.Fprintf(out, "  %-8s %.2f\n", k, m.PerKmDb[k])
			}
			fmt.Fprintf(out, "  %-8s %.2f\n", "other", m.DefaultPerKmDb)

			fmt.Fprintln(out, "splitter insertion loss (dB)")
			ratios := sortedKeys(m.SplitterLossDb)
			sort.SliceStable(ratios, func(i, j int) bool { return m.SplitterLossDb[ratios[i]] < m.SplitterLossDb[ratios[j]] })
			for _, k := range ratios {
				fmt.Fprintf(out, "  %-8s %.2f\n", k, m.SplitterLossDb[k])
			}
			fmt.Fprintf(out, "  %-8s %.2f\n", "other", m.DefaultSplitterLossDb)

			fmt.Fprintf(out, "splice loss %.2f dB\n", m.SpliceLossDb)
			return nil
		},
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
