package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/kb"
)

func newTraceCmd(opts *rootOptions) *cobra.Command {
	var maxHops int
	cmd := &cobra.Command{
		Use:   "trace <snapshot> <cable> <strand>",
		Short: "Trace one strand through a snapshot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			strand, err := strconv.Atoi(args[2])
			if err != nil || strand < 1 {
				return fmt.Errorf("strand must be a positive integer, got %q", args[2])
			}
			tracerOpts, _, err := opts.tracerOptions()
			if err != nil {
				return err
			}
			if maxHops > 0 {
				tracerOpts = append(tracerOpts, core.WithMaxHops(maxHops))
			}

			snap, err := loadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res := core.NewTracer(tracerOpts...).Trace(kb.Build(snap), args[1], strand)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, res)
			}
			printTrace(out, snap.Version, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "Cable ceiling per trace (default: cable count + 1)")
	return cmd
}

func printTrace(w io.Writer, version string, res core.TraceResult) {
	p := printer()
	fmt.Fprintf(w, "Cable %s strand %d", res.StartCableID, res.Strand)
	if version != "" {
		fprintColored(w, dimColor, "  (snapshot %s)", version)
	}
	fmt.Fprintln(w)

	for i, seg := range res.Segments {
		switch seg.Kind {
		case core.SegmentCable:
			hue, tube := core.StrandColor(seg.Strand)
			fmt.Fprintf(w, "  %2d  ─ cable %-12s strand %d", i, seg.Name, seg.Strand)
			if hue != "" {
				fprintColored(w, dimColor, " (%s, tube %d)", hue, tube)
			}
			fmt.Fprintln(w)
		case core.SegmentNode:
			fmt.Fprintf(w, "  %2d  ● %s%s\n", i, seg.Name, formatMeta(seg.Meta))
		default:
			fmt.Fprintf(w, "  %2d  ◆ %s%s\n", i, seg.Name, formatMeta(seg.Meta))
		}
	}

	fprintColored(w, statusColor(res.Status), "%s", res.Status)
	fmt.Fprintf(w, " (%s)", res.Reason)
	if res.Endpoint != nil && res.Endpoint.Details != "" {
		fmt.Fprintf(w, ": %s", res.Endpoint.Details)
	}
	fmt.Fprintln(w)
	p.Fprintf(w, "distance %.0f m, estimated loss %.2f dB, %d cables\n", res.TotalDistanceMeters, res.TotalLossDb, res.Hops)
}

func formatMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return "  [" + strings.Join(parts, " ") + "]"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
