package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/api"
	"github.com/signalsfoundry/fibertrace/internal/config"
	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/internal/observability"
	"github.com/signalsfoundry/fibertrace/internal/snapshot"
	"github.com/signalsfoundry/fibertrace/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	envFile := flag.String("env-file", ".env", "Optional KEY=VALUE file loaded before FIBERTRACE_* overrides")
	snapshotURL := flag.String("snapshot", "", "Snapshot location (path or URL); overrides the config")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the gRPC server listens on; overrides the config")
	httpAddr := flag.String("http-addr", "", "TCP address the HTTP server listens on; overrides the config")
	flag.Parse()

	ctx := context.Background()
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *snapshotURL != "" {
		cfg.Snapshot.URL = *snapshotURL
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}

	log := logging.New(cfg.Log)

	lis, err := listen(cfg.Server)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "trace server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners holds the sockets run serves on. A nil listener disables that
// surface.
type listeners struct {
	grpc net.Listener
	http net.Listener
}

func listen(cfg config.ServerConfig) (listeners, error) {
	var l listeners
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return l, fmt.Errorf("listen gRPC %s: %w", cfg.GRPCAddr, err)
		}
		l.grpc = lis
	}
	if cfg.HTTPAddr != "" {
		lis, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			if l.grpc != nil {
				l.grpc.Close()
			}
			return l, fmt.Errorf("listen HTTP %s: %w", cfg.HTTPAddr, err)
		}
		l.http = lis
	}
	return l, nil
}

// run serves until ctx is cancelled, then shuts everything down.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return fmt.Errorf("init API metrics: %w", err)
	}
	traceMetrics, err := observability.NewTraceCollector(reg)
	if err != nil {
		return fmt.Errorf("init trace metrics: %w", err)
	}

	holder := snapshot.NewHolder()
	cache := snapshot.NewIndexCache(cfg.Trace.CacheSize, traceMetrics)
	reloader := &snapshot.Reloader{
		Source:   snapshot.NewSource(cfg.Snapshot.URL),
		Holder:   holder,
		Cache:    cache,
		Recorder: traceMetrics,
		Log:      log,
	}

	opts := []api.ServiceOption{
		api.WithTracer(core.NewTracer(cfg.TracerOptions()...)),
		api.WithTraceRecorder(traceMetrics),
	}
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Config, log)
		if err != nil {
			return err
		}
		defer st.Close()
		reloader.Store = st
		opts = append(opts, api.WithArchive(st, cache))
	}
	svc := api.NewService(holder, log, opts...)

	if _, err := reloader.Reload(ctx); err != nil {
		if !cfg.Snapshot.Watch {
			return fmt.Errorf("initial snapshot load: %w", err)
		}
		log.Warn(ctx, "initial snapshot load failed; waiting for the file to change", logging.Err(err))
	}

	if path, ok := localPath(cfg.Snapshot.URL); cfg.Snapshot.Watch && !ok {
		log.Warn(ctx, "snapshot watch needs a local file", logging.String("url", cfg.Snapshot.URL))
	} else if cfg.Snapshot.Watch {
		reload := func(ctx context.Context) error {
			_, err := reloader.Reload(ctx)
			return err
		}
		w, err := snapshot.NewWatcher(path, cfg.Snapshot.Debounce, reload, log)
		if err != nil {
			log.Warn(ctx, "snapshot watch disabled", logging.String("url", cfg.Snapshot.URL), logging.Err(err))
		} else {
			defer w.Close()
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn(ctx, "snapshot watcher stopped", logging.Err(err))
				}
			}()
		}
	}

	errCh := make(chan error, 2)

	var grpcServer interface{ GracefulStop() }
	if lis.grpc != nil {
		server := api.NewServer(svc, log, apiMetrics)
		grpcServer = server
		log.Info(ctx, "starting gRPC server", logging.String("addr", lis.grpc.Addr().String()))
		go func() {
			if err := server.Serve(lis.grpc); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	var httpServer *http.Server
	if lis.http != nil {
		httpServer = &http.Server{
			Handler: api.NewHTTPHandler(svc, api.HTTPConfig{
				ServiceName: cfg.Tracing.ServiceName,
				RateLimit:   cfg.Server.RateLimit,
				Burst:       cfg.Server.Burst,
			}, log, apiMetrics),
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Info(ctx, "starting HTTP server", logging.String("addr", lis.http.Addr().String()))
		go func() {
			if err := httpServer.Serve(lis.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down trace server")
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return runErr
}

// localPath returns the filesystem path behind a snapshot URL, or false for
// remote schemes.
func localPath(url string) (string, bool) {
	if rest, ok := strings.CutPrefix(url, "file://"); ok {
		return rest, true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return url, true
}
