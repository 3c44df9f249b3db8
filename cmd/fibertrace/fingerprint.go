package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/fibertrace/internal/snapshot"
)

func newFingerprintCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <snapshot>",
		Short: "Print the content hash of a snapshot, ignoring its version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fp, err := snapshot.Fingerprint(snap)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, map[string]string{"version": snap.Version, "fingerprint": fp})
			}
			fmt.Fprintln(out, fp)
			return nil
		},
	}
}
