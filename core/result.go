package core

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/signalsfoundry/fibertrace/model"
)

// TraceStatus is the terminal classification of a trace.
type TraceStatus string

const (
	StatusConnected TraceStatus = "CONNECTED"
	StatusBroken    TraceStatus = "BROKEN"
	StatusUnused    TraceStatus = "UNUSED"
)

// SegmentKind tags an entry of the trace timeline.
type SegmentKind string

const (
	SegmentCable    SegmentKind = "CABLE"
	SegmentNode     SegmentKind = "NODE"
	SegmentEndpoint SegmentKind = "ENDPOINT"
)

// EndpointKind describes how a trace terminated.
type EndpointKind string

const (
	EndpointClient     EndpointKind = "CLIENT"
	EndpointOpen       EndpointKind = "OPEN"
	EndpointUnresolved EndpointKind = "UNRESOLVED"
)

// Reason is the machine-readable cause behind a trace's terminal state.
type Reason string

const (
	ReasonClientReached     Reason = "client_reached"
	ReasonOpenEnd           Reason = "open_end"
	ReasonUnusedStrand      Reason = "unused_strand"
	ReasonUnpatchedPort     Reason = "unpatched_port"
	ReasonOpenSplice        Reason = "open_splice"
	ReasonMissingCable      Reason = "missing_cable"
	ReasonMissingNode       Reason = "missing_node"
	ReasonStrandOutOfRange  Reason = "strand_out_of_range"
	ReasonDamagedStrand     Reason = "damaged_strand"
	ReasonUnknownPort       Reason = "unknown_port"
	ReasonPatchMismatch     Reason = "patch_mismatch"
	ReasonDetachedCable     Reason = "detached_cable"
	ReasonLoop              Reason = "loop"
	ReasonHopLimit          Reason = "hop_limit"
	ReasonUnresolvedPatch   Reason = "unresolved_patch"
)

// Segment is one step of the reconstructed optical path.
type Segment struct {
	Kind   SegmentKind       `json:"kind"`
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Strand int               `json:"strand,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Endpoint describes where the trace ended.
type Endpoint struct {
	Kind    EndpointKind `json:"kind"`
	ID      string       `json:"id,omitempty"`
	Name    string       `json:"name"`
	Details string       `json:"details,omitempty"`
}

// TraceResult is the complete, immutable outcome of tracing one strand.
type TraceResult struct {
	Strand              int         `json:"strand"`
	StartCableID        string      `json:"startCableId"`
	Segments            []Segment   `json:"segments"`
	TotalDistanceMeters float64     `json:"totalDistanceMeters"`
	TotalLossDb         float64     `json:"totalEstimatedLossDb"`
	Status              TraceStatus `json:"status"`
	Reason              Reason      `json:"reason"`
	Endpoint            *Endpoint   `json:"endpoint,omitempty"`
	Hops                int         `json:"hops"`
}

var errMalformedResult = errors.New("malformed trace result")

// Validate checks the segment ordering and status invariants:
//
//	[ENDPOINT]                                  (rejected before walking)
//	[ENDPOINT, CABLE, (NODE, CABLE)*, ENDPOINT]
//
// CONNECTED pairs with a CLIENT endpoint, UNUSED with OPEN and BROKEN with
// UNRESOLVED.
func (r *TraceResult) Validate() error {
	segs := r.Segments
	if len(segs) == 0 {
		return fmt.Errorf("%w: no segments", errMalformedResult)
	}
	if segs[0].Kind != SegmentEndpoint {
		return fmt.Errorf("%w: first segment is %s", errMalformedResult, segs[0].Kind)
	}
	if r.Endpoint == nil {
		return fmt.Errorf("%w: missing endpoint", errMalformedResult)
	}

	if len(segs) == 1 {
		if r.Status != StatusBroken {
			return fmt.Errorf("%w: single-segment result with status %s", errMalformedResult, r.Status)
		}
	} else {
		last := len(segs) - 1
		if segs[last].Kind != SegmentEndpoint {
			return fmt.Errorf("%w: last segment is %s", errMalformedResult, segs[last].Kind)
		}
		for i := 1; i < last; i++ {
			want := SegmentCable
			if i%2 == 0 {
				want = SegmentNode
			}
			if segs[i].Kind != want {
				return fmt.Errorf("%w: segment %d is %s, want %s", errMalformedResult, i, segs[i].Kind, want)
			}
		}
		if last%2 != 0 {
			return fmt.Errorf("%w: path does not end on a cable", errMalformedResult)
		}
	}

	want := map[TraceStatus]EndpointKind{
		StatusConnected: EndpointClient,
		StatusUnused:    EndpointOpen,
		StatusBroken:    EndpointUnresolved,
	}
	kind, ok := want[r.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", errMalformedResult, r.Status)
	}
	if r.Endpoint.Kind != kind {
		return fmt.Errorf("%w: status %s with endpoint %s", errMalformedResult, r.Status, r.Endpoint.Kind)
	}
	return nil
}

// resultBuilder accumulates segments and totals while the walker runs.
type resultBuilder struct {
	res TraceResult
}

func newResultBuilder(cableID string, strand int) *resultBuilder {
	return &resultBuilder{res: TraceResult{StartCableID: cableID, Strand: strand}}
}

func (b *resultBuilder) startNode(id string, n *model.Node) {
	seg := Segment{Kind: SegmentEndpoint, ID: id, Name: id}
	if n != nil {
		seg.Name = n.DisplayName()
		seg.Meta = map[string]string{"kind": string(n.Kind)}
	} else {
		seg.Meta = map[string]string{"missing": "true"}
	}
	b.res.Segments = append(b.res.Segments, seg)
}

func (b *resultBuilder) cable(c *model.Cable, strand int, lossDb float64) {
	color, tube := StrandColor(strand)
	st := c.Strand(strand)
	meta := map[string]string{
		"color":        color,
		"tube":         strconv.Itoa(tube),
		"status":       string(st.Status),
		"type":         c.TypeCode,
		"lengthMeters": strconv.FormatFloat(c.LengthMeters, 'f', -1, 64),
	}
	b.res.Segments = append(b.res.Segments, Segment{
		Kind:   SegmentCable,
		ID:     c.ID,
		Name:   c.ID,
		Strand: strand,
		Meta:   meta,
	})
	b.res.TotalDistanceMeters += c.LengthMeters
	b.res.TotalLossDb += lossDb
	b.res.Hops++
}

func (b *resultBuilder) node(n *model.Node, via string, port int, lossDb float64) {
	meta := map[string]string{"kind": string(n.Kind), "via": via}
	if port > 0 {
		meta["port"] = strconv.Itoa(port)
	}
	if ratio := n.SplitRatio(); ratio != "" {
		meta["ratio"] = ratio
	}
	b.res.Segments = append(b.res.Segments, Segment{
		Kind: SegmentNode,
		ID:   n.ID,
		Name: n.DisplayName(),
		Meta: meta,
	})
	b.res.TotalLossDb += lossDb
}

// finish appends the terminal ENDPOINT segment and records the outcome.
func (b *resultBuilder) finish(status TraceStatus, reason Reason, ep Endpoint, meta map[string]string) TraceResult {
	if meta == nil {
		meta = map[string]string{}
	}
	meta["endpoint"] = string(ep.Kind)
	if ep.Details != "" {
		meta["details"] = ep.Details
	}
	b.res.Segments = append(b.res.Segments, Segment{
		Kind: SegmentEndpoint,
		ID:   ep.ID,
		Name: ep.Name,
		Meta: meta,
	})
	return b.seal(status, reason, ep)
}

// reject produces the single-segment BROKEN result used when the start
// position is unusable.
func (b *resultBuilder) reject(reason Reason, id, name, details string) TraceResult {
	b.res.Segments = []Segment{{
		Kind: SegmentEndpoint,
		ID:   id,
		Name: name,
		Meta: map[string]string{"endpoint": string(EndpointUnresolved), "details": details},
	}}
	return b.seal(StatusBroken, reason, Endpoint{Kind: EndpointUnresolved, ID: id, Name: name, Details: details})
}

func (b *resultBuilder) seal(status TraceStatus, reason Reason, ep Endpoint) TraceResult {
	b.res.Status = status
	b.res.Reason = reason
	b.res.Endpoint = &ep
	res := b.res
	if err := res.Validate(); err != nil {
		panic(fmt.Sprintf("core: %v", err))
	}
	return res
}
