package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/kb"
)

var errAuditFailed = errors.New("snapshot has integrity errors")

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <snapshot>",
		Short: "Check a snapshot for dangling references and inconsistent data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			idx := kb.Build(snap)
			issues := core.Audit(idx)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if issues == nil {
					issues = []core.Issue{}
				}
				if err := writeJSON(out, issues); err != nil {
					return err
				}
			} else {
				p := printer()
				p.Fprintf(out, "snapshot %s: %d nodes, %d cables, %d strands\n",
					idx.Version(), idx.NodeCount(), idx.CableCount(), idx.TotalStrands())
				for _, is := range issues {
					c := warnColor
					if is.Severity == core.SeverityError {
						c = errColor
					}
					fprintColored(out, c, "%-7s", is.Severity)
					fmt.Fprintf(out, " %-24s %-22s %s\n", is.Subject, is.Code, is.Message)
				}
				if len(issues) == 0 {
					fprintColored(out, okColor, "ok")
					fmt.Fprintln(out)
				}
			}

			if core.HasErrors(issues) || (strict && len(issues) > 0) {
				return errAuditFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on warnings as well as errors")
	return cmd
}
