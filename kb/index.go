package kb

import (
	"sort"

	"github.com/signalsfoundry/fibertrace/model"
)

// Index is an immutable lookup structure over one network snapshot: nodes and
// cables by ID, and cables by the nodes they terminate on.
//
// An Index is never mutated after Build returns, so it can be shared by any
// number of concurrent traces without locking. A changed snapshot gets a new
// Index.
type Index struct {
	version string

	nodes        map[string]*model.Node
	cables       map[string]*model.Cable
	cablesByNode map[string][]*model.Cable
	outgoing     map[string][]*model.Cable

	totalStrands int
	duplicates   []string
}

// Build indexes a snapshot in O(nodes + cables). Dangling references are kept
// as-is; lookups for them simply miss. When an ID appears twice the first
// occurrence wins and the ID is reported by Duplicates.
func Build(snap *model.Snapshot) *Index {
	idx := &Index{
		nodes:        make(map[string]*model.Node),
		cables:       make(map[string]*model.Cable),
		cablesByNode: make(map[string][]*model.Cable),
		outgoing:     make(map[string][]*model.Cable),
	}
	if snap == nil {
		return idx
	}
	idx.version = snap.Version

	for _, n := range snap.Nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if _, exists := idx.nodes[n.ID]; exists {
			idx.duplicates = append(idx.duplicates, "node:"+n.ID)
			continue
		}
		idx.nodes[n.ID] = n
	}

	for _, c := range snap.Cables {
		if c == nil || c.ID == "" {
			continue
		}
		if _, exists := idx.cables[c.ID]; exists {
			idx.duplicates = append(idx.duplicates, "cable:"+c.ID)
			continue
		}
		idx.cables[c.ID] = c
		idx.totalStrands += c.StrandCount

		idx.attach(c.StartNodeID, c)
		if c.EndNodeID != c.StartNodeID {
			idx.attach(c.EndNodeID, c)
		}
		if c.StartNodeID != "" {
			idx.outgoing[c.StartNodeID] = append(idx.outgoing[c.StartNodeID], c)
		}
	}

	for _, list := range idx.cablesByNode {
		sortCables(list)
	}
	for _, list := range idx.outgoing {
		sortCables(list)
	}
	sort.Strings(idx.duplicates)
	return idx
}

func (idx *Index) attach(nodeID string, c *model.Cable) {
	if nodeID == "" {
		return
	}
	idx.cablesByNode[nodeID] = append(idx.cablesByNode[nodeID], c)
}

func sortCables(list []*model.Cable) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

// Version returns the snapshot version the index was built from.
func (idx *Index) Version() string { return idx.version }

// NodeByID returns the node with the given ID.
func (idx *Index) NodeByID(id string) (*model.Node, bool) {
	n, ok := idx.nodes[id]
	return n, ok
}

// CableByID returns the cable with the given ID.
func (idx *Index) CableByID(id string) (*model.Cable, bool) {
	c, ok := idx.cables[id]
	return c, ok
}

// CablesAt returns the cables that start or end at nodeID, ordered by ID.
// The returned slice is shared and must not be modified.
func (idx *Index) CablesAt(nodeID string) []*model.Cable {
	return idx.cablesByNode[nodeID]
}

// OutgoingFrom returns the cables whose start node is nodeID, ordered by ID.
// The returned slice is shared and must not be modified.
func (idx *Index) OutgoingFrom(nodeID string) []*model.Cable {
	return idx.outgoing[nodeID]
}

// NodeCount returns the number of distinct nodes.
func (idx *Index) NodeCount() int { return len(idx.nodes) }

// CableCount returns the number of distinct cables.
func (idx *Index) CableCount() int { return len(idx.cables) }

// TotalStrands returns the sum of strand counts over all cables.
func (idx *Index) TotalStrands() int { return idx.totalStrands }

// Duplicates lists "node:<id>" and "cable:<id>" entries that were dropped
// because the ID had already been indexed.
func (idx *Index) Duplicates() []string {
	out := make([]string, len(idx.duplicates))
	copy(out, idx.duplicates)
	return out
}

// Nodes returns all indexed nodes ordered by ID.
func (idx *Index) Nodes() []*model.Node {
	out := make([]*model.Node, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cables returns all indexed cables ordered by ID.
func (idx *Index) Cables() []*model.Cable {
	out := make([]*model.Cable, 0, len(idx.cables))
	for _, c := range idx.cables {
		out = append(out, c)
	}
	sortCables(out)
	return out
}
