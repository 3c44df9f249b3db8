package core

import (
	"fmt"
	"strconv"

	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

// Tracer walks strands through an index. A Tracer holds only read-only
// configuration and may be shared between goroutines.
type Tracer struct {
	loss    LossModel
	maxHops int
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithLossModel replaces the default attenuation constants.
func WithLossModel(m LossModel) Option {
	return func(t *Tracer) { t.loss = m }
}

// WithMaxHops caps the number of cables a single trace may traverse. Zero or
// negative values keep the default of one more than the index's cable count.
func WithMaxHops(n int) Option {
	return func(t *Tracer) { t.maxHops = n }
}

// NewTracer returns a Tracer using DefaultLossModel unless overridden.
func NewTracer(opts ...Option) *Tracer {
	t := &Tracer{loss: DefaultLossModel()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LossModel returns the attenuation constants used by t.
func (t *Tracer) LossModel() LossModel { return t.loss }

type visitKey struct {
	cable  string
	strand int
}

// Trace reconstructs the optical path of strand on startCableID, walking away
// from the cable's start node. It never returns an error: every data problem
// becomes a BROKEN or UNUSED result with a diagnostic endpoint.
//
// Trace panics if idx is nil or strand is not positive; both are caller bugs.
func (t *Tracer) Trace(idx *kb.Index, startCableID string, strand int) TraceResult {
	if idx == nil {
		panic("core: Trace called with a nil index")
	}
	if strand <= 0 {
		panic(fmt.Sprintf("core: strand index must be positive, got %d", strand))
	}

	b := newResultBuilder(startCableID, strand)

	cable, ok := idx.CableByID(startCableID)
	if !ok {
		return b.reject(ReasonMissingCable, startCableID, "Cable not found",
			fmt.Sprintf("cable %q does not exist", startCableID))
	}
	if !cable.HasStrand(strand) {
		return b.reject(ReasonStrandOutOfRange, cable.ID, "Strand not found",
			fmt.Sprintf("cable %s has %d strands, strand %d requested", cable.ID, cable.StrandCount, strand))
	}
	if cable.Strand(strand).Status == model.StrandDamaged {
		return b.reject(ReasonDamagedStrand, cable.ID, "Damaged strand",
			fmt.Sprintf("strand %d of cable %s is marked DAMAGED", strand, cable.ID))
	}

	start, _ := idx.NodeByID(cable.StartNodeID)
	b.startNode(cable.StartNodeID, start)
	b.cable(cable, strand, t.loss.CableLossDb(cable))

	visited := map[visitKey]struct{}{{cable.ID, strand}: {}}
	limit := t.hopLimit(idx)
	pos := Position{CableID: cable.ID, Strand: strand, FromNodeID: cable.StartNodeID}

	for {
		step := ResolveNext(idx, pos)
		if step.End != nil {
			return t.terminate(idx, b, step.End)
		}
		hop := step.Next
		next := hop.Position

		if _, seen := visited[visitKey{next.CableID, next.Strand}]; seen {
			t.endAt(b, hop.Node)
			return b.finish(StatusBroken, ReasonLoop, Endpoint{
				Kind:    EndpointUnresolved,
				ID:      hop.Node.ID,
				Name:    "Loop detected",
				Details: fmt.Sprintf("cable %s strand %d is reached a second time at %s", next.CableID, next.Strand, hop.Node.DisplayName()),
			}, map[string]string{"cable": next.CableID, "strand": strconv.Itoa(next.Strand)})
		}
		if b.res.Hops >= limit {
			t.endAt(b, hop.Node)
			return b.finish(StatusBroken, ReasonHopLimit, Endpoint{
				Kind:    EndpointUnresolved,
				ID:      hop.Node.ID,
				Name:    "Hop limit reached",
				Details: fmt.Sprintf("trace stopped after %d cables", b.res.Hops),
			}, map[string]string{"limit": strconv.Itoa(limit)})
		}

		nextCable, _ := idx.CableByID(next.CableID)
		if !nextCable.Touches(hop.Node.ID) {
			t.endAt(b, hop.Node)
			return b.finish(StatusBroken, ReasonDetachedCable, Endpoint{
				Kind: EndpointUnresolved,
				ID:   hop.Node.ID,
				Name: "Detached cable",
				Details: fmt.Sprintf("%s at %s leads to cable %s which runs %s to %s",
					hop.Via, hop.Node.DisplayName(), nextCable.ID, nextCable.StartNodeID, nextCable.EndNodeID),
			}, map[string]string{"cable": nextCable.ID})
		}
		if nextCable.Strand(next.Strand).Status == model.StrandDamaged {
			t.endAt(b, hop.Node)
			return b.finish(StatusBroken, ReasonDamagedStrand, Endpoint{
				Kind:    EndpointUnresolved,
				ID:      nextCable.ID,
				Name:    "Damaged strand",
				Details: fmt.Sprintf("strand %d of cable %s is marked DAMAGED", next.Strand, nextCable.ID),
			}, map[string]string{"cable": nextCable.ID, "strand": strconv.Itoa(next.Strand)})
		}

		b.node(hop.Node, hop.Via, hop.Port, t.nodeLoss(hop))
		b.cable(nextCable, next.Strand, t.loss.CableLossDb(nextCable))
		visited[visitKey{next.CableID, next.Strand}] = struct{}{}
		pos = next
	}
}

func (t *Tracer) hopLimit(idx *kb.Index) int {
	if t.maxHops > 0 {
		return t.maxHops
	}
	return idx.CableCount() + 1
}

func (t *Tracer) nodeLoss(hop *NextHop) float64 {
	switch {
	case hop.Via == ViaSplice:
		return t.loss.SpliceLossDb
	case hop.Node.Kind == model.NodeKindSplitter:
		return t.loss.SplitterLoss(hop.Node.SplitRatio())
	default:
		return 0
	}
}

// endAt charges the insertion loss of a splitter the trace stops at. A
// splitter that is passed through is charged by nodeLoss instead.
func (t *Tracer) endAt(b *resultBuilder, n *model.Node) {
	if n != nil && n.Kind == model.NodeKindSplitter {
		b.res.TotalLossDb += t.loss.SplitterLoss(n.SplitRatio())
	}
}

func (t *Tracer) terminate(idx *kb.Index, b *resultBuilder, end *Terminal) TraceResult {
	if n, ok := idx.NodeByID(end.NodeID); ok {
		t.endAt(b, n)
	}
	ep := Endpoint{Kind: end.Kind, ID: end.NodeID, Name: end.Name, Details: end.Details}
	meta := map[string]string{}
	if end.Port > 0 {
		meta["port"] = strconv.Itoa(end.Port)
	}

	switch end.Kind {
	case EndpointClient:
		c := end.Client
		ep.ID = c.ID
		meta["node"] = end.NodeID
		if c.Login != "" {
			meta["login"] = c.Login
		}
		if c.Status != "" {
			meta["clientStatus"] = c.Status
		}
		return b.finish(StatusConnected, end.Reason, ep, meta)
	case EndpointOpen:
		return b.finish(StatusUnused, end.Reason, ep, meta)
	default:
		return b.finish(StatusBroken, end.Reason, ep, meta)
	}
}

var defaultTracer = NewTracer()

// Trace runs a trace with the default loss model and hop ceiling.
func Trace(idx *kb.Index, startCableID string, strand int) TraceResult {
	return defaultTracer.Trace(idx, startCableID, strand)
}

// TraceSnapshot indexes snap and traces one strand through it. Callers tracing
// many strands of the same snapshot should build the index once and use Trace.
func TraceSnapshot(snap *model.Snapshot, startCableID string, strand int) TraceResult {
	return Trace(kb.Build(snap), startCableID, strand)
}
