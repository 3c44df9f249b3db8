package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/fibertrace/internal/api"
	"github.com/signalsfoundry/fibertrace/internal/logging"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		server  string
		version string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "query <cable> <strand>",
		Short: "Trace a strand on a running trace server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			strand, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("strand must be an integer, got %q", args[1])
			}

			conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", server, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", logging.NewRequestID())

			resp, err := api.NewClient(conn).Trace(ctx, api.TraceRequest{CableID: args[0], Strand: strand, Version: version})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, resp)
			}
			printTrace(out, resp.SnapshotVersion, resp.TraceResult)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "localhost:50051", "Trace server gRPC address")
	cmd.Flags().StringVar(&version, "version", "", "Snapshot version to trace against (default: served version)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}
