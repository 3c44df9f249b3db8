package snapshot

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

// ErrSnapshotUnavailable reports that no snapshot can be served: none has been
// published yet, or the source could not be fetched.
var ErrSnapshotUnavailable = errors.New("snapshot unavailable")

// Current is the snapshot being served together with its index.
type Current struct {
	Snapshot *model.Snapshot
	Index    *kb.Index
	LoadedAt time.Time
}

// Version returns the served snapshot version.
func (c *Current) Version() string { return c.Index.Version() }

// Holder publishes the current snapshot. Swaps are atomic and last-write-wins;
// traces that already fetched a Current keep using it.
type Holder struct {
	cur atomic.Pointer[Current]
	now func() time.Time
}

// NewHolder returns an empty Holder.
func NewHolder() *Holder {
	return &Holder{now: time.Now}
}

// Swap indexes snap and makes it current.
func (h *Holder) Swap(snap *model.Snapshot) *Current {
	return h.SwapIndexed(snap, kb.Build(snap))
}

// SwapIndexed publishes snap with an index the caller already built.
func (h *Holder) SwapIndexed(snap *model.Snapshot, idx *kb.Index) *Current {
	c := &Current{Snapshot: snap, Index: idx, LoadedAt: h.now()}
	h.cur.Store(c)
	return c
}

// Current returns the published snapshot or ErrSnapshotUnavailable before
// the first Swap.
func (h *Holder) Current() (*Current, error) {
	c := h.cur.Load()
	if c == nil {
		return nil, ErrSnapshotUnavailable
	}
	return c, nil
}
