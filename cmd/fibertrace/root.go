package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/config"
	"github.com/signalsfoundry/fibertrace/internal/snapshot"
	"github.com/signalsfoundry/fibertrace/model"
)

type rootOptions struct {
	configPath string
	jsonOut    bool
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fibertrace",
		Short: "Trace optical continuity through FTTH plant snapshots",
		Long: `fibertrace follows one strand of a fiber cable through joints, splitters
and PCOs and reports where it ends: a client, a spare port or a break.
Snapshots can be local paths or any URL the server understands.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config supplying loss overrides and hop limit")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")

	cmd.AddCommand(
		newTraceCmd(opts),
		newValidateCmd(opts),
		newFingerprintCmd(opts),
		newLossesCmd(opts),
		newQueryCmd(opts),
	)
	return cmd
}

// tracerOptions returns the tracer options and loss model from --config, or
// the defaults when no config is given.
func (o *rootOptions) tracerOptions() ([]core.Option, core.LossModel, error) {
	if o.configPath == "" {
		return nil, core.DefaultLossModel(), nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, core.LossModel{}, err
	}
	return cfg.TracerOptions(), cfg.LossModel(), nil
}

func loadSnapshot(ctx context.Context, url string) (*model.Snapshot, error) {
	return snapshot.NewSource(url).Load(ctx)
}

// printer formats numbers with thousands separators.
func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func statusColor(s core.TraceStatus) *color.Color {
	switch s {
	case core.StatusConnected:
		return okColor
	case core.StatusUnused:
		return warnColor
	default:
		return errColor
	}
}

func fprintColored(w io.Writer, c *color.Color, format string, args ...any) {
	fmt.Fprint(w, c.Sprintf(format, args...))
}
