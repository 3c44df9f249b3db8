package model

// NodeKind is the category of a network element in the outside plant or
// central office.
type NodeKind string

const (
	NodeKindSite     NodeKind = "SITE"
	NodeKindMSAN     NodeKind = "MSAN"
	NodeKindOLT      NodeKind = "OLT"
	NodeKindSlot     NodeKind = "SLOT"
	NodeKindBoard    NodeKind = "BOARD"
	NodeKindGponPort NodeKind = "GPON_PORT"
	NodeKindSplitter NodeKind = "SPLITTER"
	NodeKindJoint    NodeKind = "JOINT"
	NodeKindChamber  NodeKind = "CHAMBER"
	NodeKindPCO      NodeKind = "PCO"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindSite, NodeKindMSAN, NodeKindOLT, NodeKindSlot, NodeKindBoard,
		NodeKindGponPort, NodeKindSplitter, NodeKindJoint, NodeKindChamber, NodeKindPCO:
		return true
	default:
		return false
	}
}

// Splices reports whether strands are fusion-spliced inside nodes of this kind.
func (k NodeKind) Splices() bool {
	return k == NodeKindJoint || k == NodeKindChamber
}

// Patches reports whether strands are patched onto numbered ports at nodes
// of this kind.
func (k NodeKind) Patches() bool {
	return k == NodeKindSplitter || k == NodeKindPCO
}

// Node is a physical or logical network element. Details holds the
// kind-specific record decoded from the inventory's attribute bag.
type Node struct {
	ID      string
	Kind    NodeKind
	Name    string
	Details NodeDetails
}

// DisplayName returns Name, falling back to the ID for unnamed nodes.
func (n *Node) DisplayName() string {
	if n == nil {
		return ""
	}
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// SpliceTable returns the node's splices, or nil for kinds without one.
func (n *Node) SpliceTable() []Splice {
	if n == nil {
		return nil
	}
	switch d := n.Details.(type) {
	case *JointDetails:
		return d.Splices
	case *ChamberDetails:
		return d.Splices
	}
	return nil
}

// PortMap returns the node's port occupancy table, or nil for kinds without one.
func (n *Node) PortMap() map[int]PortOccupancy {
	if n == nil {
		return nil
	}
	switch d := n.Details.(type) {
	case *SplitterDetails:
		return d.Ports
	case *PcoDetails:
		return d.Ports
	}
	return nil
}

// SubscriberPort returns the PCO subscriber port with the given number.
func (n *Node) SubscriberPort(port int) (SubscriberPort, bool) {
	if n == nil {
		return SubscriberPort{}, false
	}
	d, ok := n.Details.(*PcoDetails)
	if !ok {
		return SubscriberPort{}, false
	}
	for _, sp := range d.SubscriberPorts {
		if sp.Port == port {
			return sp, true
		}
	}
	return SubscriberPort{}, false
}

// SplitRatio returns the splitter ratio (e.g. "1:8"), or "" for other kinds.
func (n *Node) SplitRatio() string {
	if n == nil {
		return ""
	}
	if d, ok := n.Details.(*SplitterDetails); ok {
		return d.Ratio
	}
	return ""
}
