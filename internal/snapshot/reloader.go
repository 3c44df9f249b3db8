package snapshot

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

// Store persists snapshot versions so that traces can be pinned to an older
// version after the current one has moved on.
type Store interface {
	Put(ctx context.Context, snap *model.Snapshot) error
	Get(ctx context.Context, version string) (*model.Snapshot, error)
}

// CountsRecorder receives snapshot size updates.
type CountsRecorder interface {
	SetSnapshotCounts(nodes, cables int)
}

// Reloader loads the snapshot from its source, audits it, archives it and
// publishes it through the holder.
type Reloader struct {
	Source   *Source
	Holder   *Holder
	Cache    *IndexCache    // optional
	Store    Store          // optional
	Recorder CountsRecorder // optional
	Log      logging.Logger
}

// Reload performs one load cycle. On error the previously published snapshot
// stays current.
func (r *Reloader) Reload(ctx context.Context) (*Current, error) {
	log := r.Log
	if log == nil {
		log = logging.Noop()
	}

	snap, err := r.Source.Load(ctx)
	if err != nil {
		return nil, err
	}
	idx := kb.Build(snap)

	issues := core.Audit(idx)
	if len(issues) > 0 {
		errs := 0
		for _, is := range issues {
			if is.Severity == core.SeverityError {
				errs++
			}
			log.Debug(ctx, "snapshot audit issue",
				logging.String("severity", string(is.Severity)),
				logging.String("code", is.Code),
				logging.String("subject", is.Subject),
				logging.String("message", is.Message),
			)
		}
		log.Warn(ctx, "snapshot has integrity issues",
			logging.String("version", snap.Version),
			logging.Int("issues", len(issues)),
			logging.Int("errors", errs),
		)
	}

	if r.Store != nil {
		if err := r.Store.Put(ctx, snap); err != nil {
			return nil, fmt.Errorf("archive snapshot %s: %w", snap.Version, err)
		}
	}
	if r.Cache != nil {
		r.Cache.Put(snap.Version, idx)
	}

	cur := r.Holder.SwapIndexed(snap, idx)
	if r.Recorder != nil {
		r.Recorder.SetSnapshotCounts(idx.NodeCount(), idx.CableCount())
	}

	log.Info(ctx, "snapshot loaded",
		logging.String("source", r.Source.URL()),
		logging.String("version", snap.Version),
		logging.Int("nodes", idx.NodeCount()),
		logging.Int("cables", idx.CableCount()),
		logging.Int("strands", idx.TotalStrands()),
	)
	return cur, nil
}
