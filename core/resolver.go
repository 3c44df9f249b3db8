package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

// Position is the walker's location: a strand on a cable, travelling away from
// FromNodeID towards the cable's other end.
type Position struct {
	CableID    string
	Strand     int
	FromNodeID string
}

// How a NextHop crossed its node.
const (
	ViaSplice = "splice"
	ViaPatch  = "patch"
)

// NextHop moves the walk through Node onto a new position. Position.FromNodeID
// is always Node.ID.
type NextHop struct {
	Node     *model.Node
	Via      string
	Port     int
	Position Position
}

// Terminal ends the walk at NodeID.
type Terminal struct {
	Kind    EndpointKind
	Reason  Reason
	NodeID  string
	Name    string
	Details string
	Port    int
	Client  *model.Client
}

// Step is the result of one resolution: exactly one of Next and End is set.
type Step struct {
	Next *NextHop
	End  *Terminal
}

// ResolveNext determines where the signal on pos goes after reaching the far
// end of its cable. Rules are tried in order and the first that applies wins:
//
//  1. joints and chambers follow their splice table;
//  2. splitters and PCOs follow the strand's port patch;
//  3. otherwise the strand ends here if no other cable leaves the node.
//
// Missing records never panic; they come back as UNRESOLVED terminals naming
// the missing ID.
func ResolveNext(idx *kb.Index, pos Position) Step {
	cable, ok := idx.CableByID(pos.CableID)
	if !ok {
		return unresolved(ReasonMissingCable, pos.FromNodeID, "Missing cable",
			fmt.Sprintf("cable %q not found", pos.CableID))
	}
	arriving := cable.FarEnd(pos.FromNodeID)
	node, ok := idx.NodeByID(arriving)
	if !ok {
		return unresolved(ReasonMissingNode, arriving, "Missing node",
			fmt.Sprintf("cable %q ends at unknown node %q", cable.ID, arriving))
	}
	st := cable.Strand(pos.Strand)

	switch {
	case node.Kind.Splices() && len(node.SpliceTable()) > 0:
		return resolveSplice(idx, node, cable, pos.Strand, st)
	case node.Kind.Patches():
		return resolvePatch(idx, node, cable, pos.Strand, st)
	}
	return noEntry(idx, node, cable, pos.Strand, st, ReasonOpenSplice)
}

func resolveSplice(idx *kb.Index, node *model.Node, cable *model.Cable, strand int, st model.StrandState) Step {
	for _, sp := range node.SpliceTable() {
		switch {
		case sp.CableIn == cable.ID && sp.StrandIn == strand:
			return hopTo(idx, node, ViaSplice, 0, sp.CableOut, sp.StrandOut)
		case sp.CableOut == cable.ID && sp.StrandOut == strand:
			return hopTo(idx, node, ViaSplice, 0, sp.CableIn, sp.StrandIn)
		}
	}
	return noEntry(idx, node, cable, strand, st, ReasonOpenSplice)
}

func resolvePatch(idx *kb.Index, node *model.Node, cable *model.Cable, strand int, st model.StrandState) Step {
	port := st.DownstreamPort
	if port <= 0 {
		return noEntry(idx, node, cable, strand, st, ReasonUnresolvedPatch)
	}
	if st.DownstreamNodeID != "" && st.DownstreamNodeID != node.ID {
		return unresolved(ReasonPatchMismatch, node.ID, "Patch mismatch",
			fmt.Sprintf("cable %s strand %d is patched to %s port %d but arrives at %s",
				cable.ID, strand, st.DownstreamNodeID, port, node.ID))
	}

	ports := node.PortMap()
	if occ, ok := ports[port]; ok && occ.Occupied() {
		if occ.OccupiedByCableID != cable.ID || occ.OccupiedByStrand != strand {
			return hopTo(idx, node, ViaPatch, port, occ.OccupiedByCableID, occ.OccupiedByStrand)
		}
	}

	for _, out := range idx.OutgoingFrom(node.ID) {
		for _, k := range strandIndexes(out) {
			if out.ID == cable.ID && k == strand {
				continue
			}
			if out.Strands[k].UpstreamPort == port {
				return hopTo(idx, node, ViaPatch, port, out.ID, k)
			}
		}
	}

	if sp, ok := node.SubscriberPort(port); ok {
		if sp.Client != nil {
			return Step{End: &Terminal{
				Kind:    EndpointClient,
				Reason:  ReasonClientReached,
				NodeID:  node.ID,
				Name:    sp.Client.DisplayName(),
				Details: fmt.Sprintf("port %d on %s", port, node.DisplayName()),
				Port:    port,
				Client:  sp.Client,
			}}
		}
		return open(ReasonUnpatchedPort, node, port, fmt.Sprintf("port %d on %s has no client", port, node.DisplayName()))
	}
	if _, ok := ports[port]; ok {
		return open(ReasonUnpatchedPort, node, port, fmt.Sprintf("port %d on %s is not patched", port, node.DisplayName()))
	}

	return unresolved(ReasonUnknownPort, node.ID, "Unknown port",
		fmt.Sprintf("port %d on %s is not occupied by any cable", port, node.DisplayName()))
}

// noEntry handles a strand with no splice or patch record at node. A node with
// nothing else attached is a plain dead end. Otherwise a strand that is not in
// service simply stops here, while a USED strand should have continued and is
// reported as unresolved.
func noEntry(idx *kb.Index, node *model.Node, cable *model.Cable, strand int, st model.StrandState, usedReason Reason) Step {
	outgoing := 0
	for _, c := range idx.OutgoingFrom(node.ID) {
		if c.ID != cable.ID {
			outgoing++
		}
	}
	if outgoing == 0 {
		return open(ReasonOpenEnd, node, 0, fmt.Sprintf("cable %s ends at %s", cable.ID, node.DisplayName()))
	}
	if st.Status != model.StrandUsed {
		return open(ReasonUnusedStrand, node, 0,
			fmt.Sprintf("strand %d of cable %s is not spliced or patched at %s", strand, cable.ID, node.DisplayName()))
	}
	label := "Open splice"
	if usedReason == ReasonUnresolvedPatch {
		label = "Unpatched strand"
	}
	return unresolved(usedReason, node.ID, label,
		fmt.Sprintf("strand %d of cable %s is in use but has no continuation at %s", strand, cable.ID, node.DisplayName()))
}

// hopTo validates the target of a splice or patch before handing it to the
// walker.
func hopTo(idx *kb.Index, node *model.Node, via string, port int, cableID string, strand int) Step {
	next, ok := idx.CableByID(cableID)
	if !ok {
		return unresolved(ReasonMissingCable, node.ID, "Missing cable",
			fmt.Sprintf("%s at %s references unknown cable %q", via, node.DisplayName(), cableID))
	}
	if !next.HasStrand(strand) {
		return unresolved(ReasonStrandOutOfRange, node.ID, "Strand out of range",
			fmt.Sprintf("%s at %s references strand %d of cable %s which has %d strands",
				via, node.DisplayName(), strand, next.ID, next.StrandCount))
	}
	return Step{Next: &NextHop{
		Node:     node,
		Via:      via,
		Port:     port,
		Position: Position{CableID: next.ID, Strand: strand, FromNodeID: node.ID},
	}}
}

func unresolved(reason Reason, nodeID, name, details string) Step {
	return Step{End: &Terminal{Kind: EndpointUnresolved, Reason: reason, NodeID: nodeID, Name: name, Details: details}}
}

func open(reason Reason, node *model.Node, port int, details string) Step {
	return Step{End: &Terminal{
		Kind:    EndpointOpen,
		Reason:  reason,
		NodeID:  node.ID,
		Name:    node.DisplayName(),
		Details: details,
		Port:    port,
	}}
}

func strandIndexes(c *model.Cable) []int {
	out := make([]int, 0, len(c.Strands))
	for k := range c.Strands {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
