// Package api exposes the trace engine over gRPC and HTTP.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/internal/snapshot"
	"github.com/signalsfoundry/fibertrace/internal/store"
	"github.com/signalsfoundry/fibertrace/kb"
)

const tracerName = "github.com/signalsfoundry/fibertrace/internal/api"

// TraceRequest selects the strand to trace. An empty Version traces against
// the snapshot currently served.
type TraceRequest struct {
	CableID string `json:"cableId"`
	Strand  int    `json:"strand"`
	Version string `json:"version,omitempty"`
}

// TraceResponse is a trace result stamped with the snapshot version it was
// computed on.
type TraceResponse struct {
	SnapshotVersion string `json:"snapshotVersion"`
	core.TraceResult
}

// SnapshotInfo summarises the snapshot currently served.
type SnapshotInfo struct {
	Version  string       `json:"version"`
	Nodes    int          `json:"nodes"`
	Cables   int          `json:"cables"`
	Strands  int          `json:"strands"`
	LoadedAt time.Time    `json:"loadedAt"`
	Archived []store.Info `json:"archived,omitempty"`
}

// TraceRecorder receives one observation per completed trace.
type TraceRecorder interface {
	ObserveTrace(status, reason string, hops int, lossDb float64, d time.Duration)
}

// Archive is the read side of the snapshot store.
type Archive interface {
	snapshot.Store
	List(ctx context.Context) ([]store.Info, error)
}

// Service runs traces against the served snapshot or an archived version.
type Service struct {
	holder  *snapshot.Holder
	cache   *snapshot.IndexCache
	archive Archive
	tracer  *core.Tracer
	metrics TraceRecorder
	log     logging.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithArchive enables tracing archived snapshot versions.
func WithArchive(a Archive, cache *snapshot.IndexCache) ServiceOption {
	return func(s *Service) {
		s.archive = a
		s.cache = cache
	}
}

// WithTracer replaces the default tracer.
func WithTracer(t *core.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// WithTraceRecorder attaches a metrics recorder.
func WithTraceRecorder(r TraceRecorder) ServiceOption {
	return func(s *Service) { s.metrics = r }
}

// NewService constructs a Service serving the snapshots published by holder.
func NewService(holder *snapshot.Holder, log logging.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{holder: holder, tracer: core.NewTracer(), log: log}
	for _, opt := range opts {
		opt(s)
	}
	if s.archive != nil && s.cache == nil {
		s.cache = snapshot.NewIndexCache(4, nil)
	}
	return s
}

// Trace validates req, resolves the snapshot version and traces the strand.
// Data problems in the plant are reported inside the result; only bad
// requests and unavailable snapshots produce an error.
func (s *Service) Trace(ctx context.Context, req TraceRequest) (TraceResponse, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "TraceService.Trace",
		trace.WithAttributes(
			attribute.String("fiber.cable_id", req.CableID),
			attribute.Int("fiber.strand", req.Strand),
		))
	defer span.End()

	if err := validateTraceRequest(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return TraceResponse{}, err
	}

	idx, err := s.index(ctx, req.Version)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TraceResponse{}, err
	}
	span.SetAttributes(attribute.String("fiber.snapshot_version", idx.Version()))

	start := time.Now()
	res := s.tracer.Trace(idx, req.CableID, req.Strand)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("fiber.status", string(res.Status)),
		attribute.String("fiber.reason", string(res.Reason)),
		attribute.Int("fiber.hops", res.Hops),
		attribute.Float64("fiber.loss_db", res.TotalLossDb),
	)
	if s.metrics != nil {
		s.metrics.ObserveTrace(string(res.Status), string(res.Reason), res.Hops, res.TotalLossDb, elapsed)
	}

	logging.LoggerFromContext(ctx, s.log).Debug(ctx, "trace completed",
		logging.String("cable_id", req.CableID),
		logging.Int("strand", req.Strand),
		logging.String("version", idx.Version()),
		logging.String("status", string(res.Status)),
		logging.String("reason", string(res.Reason)),
		logging.Int("hops", res.Hops),
		logging.Duration("elapsed", elapsed),
	)

	return TraceResponse{SnapshotVersion: idx.Version(), TraceResult: res}, nil
}

// Snapshot describes the served snapshot and, when an archive is configured,
// the archived versions.
func (s *Service) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	cur, err := s.holder.Current()
	if err != nil {
		return SnapshotInfo{}, err
	}
	info := SnapshotInfo{
		Version:  cur.Version(),
		Nodes:    cur.Index.NodeCount(),
		Cables:   cur.Index.CableCount(),
		Strands:  cur.Index.TotalStrands(),
		LoadedAt: cur.LoadedAt,
	}
	if s.archive != nil {
		archived, err := s.archive.List(ctx)
		if err != nil {
			return SnapshotInfo{}, fmt.Errorf("list archived snapshots: %w", err)
		}
		info.Archived = archived
	}
	return info, nil
}

func (s *Service) index(ctx context.Context, version string) (*kb.Index, error) {
	cur, err := s.holder.Current()
	if err != nil {
		return nil, err
	}
	if version == "" || version == cur.Version() {
		return cur.Index, nil
	}
	if s.archive == nil {
		return nil, fmt.Errorf("%w: %q is not the served version and no archive is configured", store.ErrVersionNotFound, version)
	}
	return s.cache.GetOrBuild(ctx, version, s.archive.Get)
}

func validateTraceRequest(req TraceRequest) error {
	if strings.TrimSpace(req.CableID) == "" {
		return fmt.Errorf("%w: cable id is required", ErrInvalidRequest)
	}
	if req.Strand < 1 {
		return fmt.Errorf("%w: strand must be 1 or greater, got %d", ErrInvalidRequest, req.Strand)
	}
	return nil
}
