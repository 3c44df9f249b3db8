package model

// StrandStatus is the provisioning state of a single fiber strand.
type StrandStatus string

const (
	StrandFree    StrandStatus = "FREE"
	StrandUsed    StrandStatus = "USED"
	StrandDamaged StrandStatus = "DAMAGED"
)

// StrandState is one row of a cable's strand status table.
type StrandState struct {
	Status StrandStatus

	// DownstreamPort and DownstreamNodeID form the fiber map: the port on the
	// node at the cable's far end that this strand is patched to. Zero means
	// no patch is recorded.
	DownstreamPort   int
	DownstreamNodeID string

	// UpstreamPort is the port on the cable's start node feeding this strand.
	UpstreamPort int
}

// Cable is a multi-strand fiber cable between two nodes.
type Cable struct {
	ID           string
	StartNodeID  string
	EndNodeID    string
	StrandCount  int
	TypeCode     string
	LengthMeters float64

	// Strands is keyed by 1-based strand index. Strands without an entry are
	// treated as FREE and unpatched.
	Strands map[int]StrandState
}

// Strand returns the status row for a strand. Missing rows read as FREE.
func (c *Cable) Strand(idx int) StrandState {
	if c == nil {
		return StrandState{Status: StrandFree}
	}
	st, ok := c.Strands[idx]
	if !ok {
		return StrandState{Status: StrandFree}
	}
	if st.Status == "" {
		st.Status = StrandFree
	}
	return st
}

// HasStrand reports whether idx is within the cable's strand count.
func (c *Cable) HasStrand(idx int) bool {
	return c != nil && idx >= 1 && idx <= c.StrandCount
}

// Touches reports whether nodeID is either end of the cable.
func (c *Cable) Touches(nodeID string) bool {
	return c != nil && nodeID != "" && (c.StartNodeID == nodeID || c.EndNodeID == nodeID)
}

// FarEnd returns the end opposite fromNodeID. Callers check Touches first.
func (c *Cable) FarEnd(fromNodeID string) string {
	if c.StartNodeID == fromNodeID {
		return c.EndNodeID
	}
	return c.StartNodeID
}
