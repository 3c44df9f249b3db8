package model

// NodeDetails is the closed set of kind-specific node records. Only types in
// this package implement it.
type NodeDetails interface {
	nodeDetails()
}

// SiteDetails describes a central office or street cabinet site.
type SiteDetails struct {
	Address string
}

// EquipmentDetails describes an active chassis (OLT or MSAN).
type EquipmentDetails struct {
	Vendor string
	Model  string
}

// SlotDetails describes a chassis slot.
type SlotDetails struct {
	Slot int
}

// BoardDetails describes a line card seated in a slot.
type BoardDetails struct {
	Board     int
	BoardType string
}

// GponPortDetails describes a PON port on a line card.
type GponPortDetails struct {
	Port int
}

// Splice is one fusion splice between two strands. It is bidirectional: either
// side may be the one the signal arrives on.
type Splice struct {
	CableIn   string
	StrandIn  int
	CableOut  string
	StrandOut int
}

// JointDetails is the splice table of a joint enclosure.
type JointDetails struct {
	Splices []Splice
}

// ChamberDetails is the splice table of a chamber (manhole). Chambers without
// splices are plain pass-through points.
type ChamberDetails struct {
	Splices []Splice
}

// PortOccupancy records which cable strand occupies a numbered port.
type PortOccupancy struct {
	OccupiedByCableID string
	OccupiedByStrand  int
}

// Occupied reports whether a strand is recorded on the port.
func (p PortOccupancy) Occupied() bool {
	return p.OccupiedByCableID != "" && p.OccupiedByStrand > 0
}

// SplitterDetails describes a PLC splitter and its port occupancy.
type SplitterDetails struct {
	Ratio string
	Ports map[int]PortOccupancy
}

// SubscriberPort is a drop port on a PCO, optionally bound to a client.
type SubscriberPort struct {
	Port   int
	Client *Client
}

// PcoDetails describes a subscriber distribution box.
type PcoDetails struct {
	Ports           map[int]PortOccupancy
	SubscriberPorts []SubscriberPort
}

func (*SiteDetails) nodeDetails()      {}
func (*EquipmentDetails) nodeDetails() {}
func (*SlotDetails) nodeDetails()      {}
func (*BoardDetails) nodeDetails()     {}
func (*GponPortDetails) nodeDetails()  {}
func (*JointDetails) nodeDetails()     {}
func (*ChamberDetails) nodeDetails()   {}
func (*SplitterDetails) nodeDetails()  {}
func (*PcoDetails) nodeDetails()       {}
