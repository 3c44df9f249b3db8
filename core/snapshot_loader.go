// core/snapshot_loader.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/signalsfoundry/fibertrace/model"
)

var (
	// ErrSnapshotDecode wraps malformed JSON.
	ErrSnapshotDecode = errors.New("snapshot decode failed")
	// ErrInvalidSnapshot wraps structurally invalid records.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// snapshotValidate checks the structural rules of the JSON payload. Graph
// level problems (dangling references, duplicate IDs) are left to Audit and
// surface as diagnostics at trace time instead.
var snapshotValidate = validator.New()

// internal JSON shapes, unexported so the wire format can evolve separately
// from the model.
type snapshotJSON struct {
	Version string       `json:"version"`
	Nodes   []*nodeJSON  `json:"nodes" validate:"dive,required"`
	Cables  []*cableJSON `json:"cables" validate:"dive,required"`
}

type nodeJSON struct {
	ID         string          `json:"id" validate:"required"`
	Kind       string          `json:"kind" validate:"required,oneof=SITE MSAN OLT SLOT BOARD GPON_PORT SPLITTER JOINT CHAMBER PCO"`
	Name       string          `json:"name"`
	Attributes *attributesJSON `json:"attributes,omitempty"`
}

// attributesJSON is the free-form attribute bag exported by the inventory.
// Only the keys relevant to the node's kind are read.
type attributesJSON struct {
	// JOINT, CHAMBER
	Splices []spliceJSON `json:"splices,omitempty" validate:"dive"`

	// SPLITTER, PCO
	Ratio           string               `json:"ratio,omitempty"`
	Ports           map[string]portJSON  `json:"ports,omitempty" validate:"dive"`
	SubscriberPorts []subscriberPortJSON `json:"subscriberPorts,omitempty" validate:"dive"`

	// SITE
	Address string `json:"address,omitempty"`
	// OLT, MSAN
	Vendor string `json:"vendor,omitempty"`
	Model  string `json:"model,omitempty"`
	// SLOT, BOARD, GPON_PORT
	Slot      int    `json:"slot,omitempty"`
	Board     int    `json:"board,omitempty"`
	BoardType string `json:"boardType,omitempty"`
	Port      int    `json:"port,omitempty"`
}

type spliceJSON struct {
	CableIn   string `json:"cableIn" validate:"required"`
	StrandIn  int    `json:"strandIn" validate:"gt=0"`
	CableOut  string `json:"cableOut" validate:"required"`
	StrandOut int    `json:"strandOut" validate:"gt=0"`
}

type portJSON struct {
	OccupiedByCableID string `json:"occupiedByCableId,omitempty"`
	OccupiedByStrand  int    `json:"occupiedByStrand,omitempty" validate:"gte=0"`
}

type subscriberPortJSON struct {
	Port   int         `json:"port" validate:"gt=0"`
	Client *clientJSON `json:"client,omitempty"`
}

type clientJSON struct {
	ID     string `json:"id" validate:"required"`
	Login  string `json:"login,omitempty"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

type cableJSON struct {
	ID           string                `json:"id" validate:"required"`
	StartNodeID  string                `json:"startNodeId"`
	EndNodeID    string                `json:"endNodeId"`
	StrandCount  int                   `json:"strandCount" validate:"gt=0"`
	TypeCode     string                `json:"cableTypeCode,omitempty"`
	LengthMeters float64               `json:"lengthMeters" validate:"gte=0"`
	Strands      map[string]strandJSON `json:"strands,omitempty" validate:"dive"`
}

type strandJSON struct {
	Status           string `json:"status,omitempty" validate:"omitempty,oneof=FREE USED DAMAGED"`
	DownstreamPort   int    `json:"downstreamPort,omitempty" validate:"gte=0"`
	DownstreamNodeID string `json:"downstreamNodeId,omitempty"`
	UpstreamPort     int    `json:"upstreamPort,omitempty" validate:"gte=0"`
}

// LoadSnapshot decodes a JSON snapshot from r into the typed model. Each
// node's attribute bag is decoded once, according to its kind.
//
// It fails on malformed JSON (ErrSnapshotDecode) and on structural errors
// such as unknown node kinds or non-numeric strand keys (ErrInvalidSnapshot).
func LoadSnapshot(r io.Reader) (*model.Snapshot, error) {
	var payload snapshotJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotDecode, err)
	}
	if err := snapshotValidate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	snap := &model.Snapshot{
		Version: payload.Version,
		Nodes:   make([]*model.Node, 0, len(payload.Nodes)),
		Cables:  make([]*model.Cable, 0, len(payload.Cables)),
	}

	for _, jn := range payload.Nodes {
		n, err := nodeFromJSON(jn)
		if err != nil {
			return nil, err
		}
		snap.Nodes = append(snap.Nodes, n)
	}

	for _, jc := range payload.Cables {
		c := &model.Cable{
			ID:           jc.ID,
			StartNodeID:  jc.StartNodeID,
			EndNodeID:    jc.EndNodeID,
			StrandCount:  jc.StrandCount,
			TypeCode:     jc.TypeCode,
			LengthMeters: jc.LengthMeters,
			Strands:      make(map[int]model.StrandState, len(jc.Strands)),
		}
		for key, js := range jc.Strands {
			idx, err := strconv.Atoi(key)
			if err != nil || idx <= 0 {
				return nil, fmt.Errorf("%w: cable %q has strand key %q", ErrInvalidSnapshot, jc.ID, key)
			}
			status := model.StrandStatus(js.Status)
			if status == "" {
				status = model.StrandFree
			}
			c.Strands[idx] = model.StrandState{
				Status:           status,
				DownstreamPort:   js.DownstreamPort,
				DownstreamNodeID: js.DownstreamNodeID,
				UpstreamPort:     js.UpstreamPort,
			}
		}
		snap.Cables = append(snap.Cables, c)
	}

	return snap, nil
}

func nodeFromJSON(jn *nodeJSON) (*model.Node, error) {
	n := &model.Node{ID: jn.ID, Kind: model.NodeKind(jn.Kind), Name: jn.Name}
	a := jn.Attributes
	if a == nil {
		a = &attributesJSON{}
	}

	switch n.Kind {
	case model.NodeKindSite:
		n.Details = &model.SiteDetails{Address: a.Address}
	case model.NodeKindOLT, model.NodeKindMSAN:
		n.Details = &model.EquipmentDetails{Vendor: a.Vendor, Model: a.Model}
	case model.NodeKindSlot:
		n.Details = &model.SlotDetails{Slot: a.Slot}
	case model.NodeKindBoard:
		n.Details = &model.BoardDetails{Board: a.Board, BoardType: a.BoardType}
	case model.NodeKindGponPort:
		n.Details = &model.GponPortDetails{Port: a.Port}
	case model.NodeKindJoint:
		n.Details = &model.JointDetails{Splices: splicesFromJSON(a.Splices)}
	case model.NodeKindChamber:
		n.Details = &model.ChamberDetails{Splices: splicesFromJSON(a.Splices)}
	case model.NodeKindSplitter:
		ports, err := portsFromJSON(jn.ID, a.Ports)
		if err != nil {
			return nil, err
		}
		n.Details = &model.SplitterDetails{Ratio: a.Ratio, Ports: ports}
	case model.NodeKindPCO:
		ports, err := portsFromJSON(jn.ID, a.Ports)
		if err != nil {
			return nil, err
		}
		d := &model.PcoDetails{Ports: ports}
		for _, sp := range a.SubscriberPorts {
			port := model.SubscriberPort{Port: sp.Port}
			if sp.Client != nil {
				port.Client = &model.Client{
					ID:     sp.Client.ID,
					Login:  sp.Client.Login,
					Name:   sp.Client.Name,
					Status: sp.Client.Status,
				}
			}
			d.SubscriberPorts = append(d.SubscriberPorts, port)
		}
		n.Details = d
	}
	return n, nil
}

func splicesFromJSON(in []spliceJSON) []model.Splice {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Splice, 0, len(in))
	for _, s := range in {
		out = append(out, model.Splice{
			CableIn:   s.CableIn,
			StrandIn:  s.StrandIn,
			CableOut:  s.CableOut,
			StrandOut: s.StrandOut,
		})
	}
	return out
}

func portsFromJSON(nodeID string, in map[string]portJSON) (map[int]model.PortOccupancy, error) {
	out := make(map[int]model.PortOccupancy, len(in))
	for key, p := range in {
		port, err := strconv.Atoi(key)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("%w: node %q has port key %q", ErrInvalidSnapshot, nodeID, key)
		}
		out[port] = model.PortOccupancy{
			OccupiedByCableID: p.OccupiedByCableID,
			OccupiedByStrand:  p.OccupiedByStrand,
		}
	}
	return out, nil
}

// EncodeSnapshot writes snap in the format LoadSnapshot reads. Map keys are
// emitted in sorted order, so equal snapshots encode to equal bytes.
func EncodeSnapshot(w io.Writer, snap *model.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	payload := snapshotJSON{
		Version: snap.Version,
		Nodes:   make([]*nodeJSON, 0, len(snap.Nodes)),
		Cables:  make([]*cableJSON, 0, len(snap.Cables)),
	}
	for _, n := range snap.Nodes {
		if n == nil {
			continue
		}
		payload.Nodes = append(payload.Nodes, nodeToJSON(n))
	}
	for _, c := range snap.Cables {
		if c == nil {
			continue
		}
		jc := &cableJSON{
			ID:           c.ID,
			StartNodeID:  c.StartNodeID,
			EndNodeID:    c.EndNodeID,
			StrandCount:  c.StrandCount,
			TypeCode:     c.TypeCode,
			LengthMeters: c.LengthMeters,
		}
		if len(c.Strands) > 0 {
			jc.Strands = make(map[string]strandJSON, len(c.Strands))
			for k, st := range c.Strands {
				jc.Strands[strconv.Itoa(k)] = strandJSON{
					Status:           string(st.Status),
					DownstreamPort:   st.DownstreamPort,
					DownstreamNodeID: st.DownstreamNodeID,
					UpstreamPort:     st.UpstreamPort,
				}
			}
		}
		payload.Cables = append(payload.Cables, jc)
	}
	return json.NewEncoder(w).Encode(&payload)
}

func nodeToJSON(n *model.Node) *nodeJSON {
	jn := &nodeJSON{ID: n.ID, Kind: string(n.Kind), Name: n.Name}
	a := &attributesJSON{}

	switch d := n.Details.(type) {
	case *model.SiteDetails:
		a.Address = d.Address
	case *model.EquipmentDetails:
		a.Vendor, a.Model = d.Vendor, d.Model
	case *model.SlotDetails:
		a.Slot = d.Slot
	case *model.BoardDetails:
		a.Board, a.BoardType = d.Board, d.BoardType
	case *model.GponPortDetails:
		a.Port = d.Port
	case *model.JointDetails:
		a.Splices = splicesToJSON(d.Splices)
	case *model.ChamberDetails:
		a.Splices = splicesToJSON(d.Splices)
	case *model.SplitterDetails:
		a.Ratio = d.Ratio
		a.Ports = portsToJSON(d.Ports)
	case *model.PcoDetails:
		a.Ports = portsToJSON(d.Ports)
		subs := append([]model.SubscriberPort(nil), d.SubscriberPorts...)
		sort.SliceStable(subs, func(i, j int) bool { return subs[i].Port < subs[j].Port })
		for _, sp := range subs {
			js := subscriberPortJSON{Port: sp.Port}
			if sp.Client != nil {
				js.Client = &clientJSON{
					ID:     sp.Client.ID,
					Login:  sp.Client.Login,
					Name:   sp.Client.Name,
					Status: sp.Client.Status,
				}
			}
			a.SubscriberPorts = append(a.SubscriberPorts, js)
		}
	default:
		return jn
	}
	jn.Attributes = a
	return jn
}

func splicesToJSON(in []model.Splice) []spliceJSON {
	out := make([]spliceJSON, 0, len(in))
	for _, s := range in {
		out = append(out, spliceJSON{CableIn: s.CableIn, StrandIn: s.StrandIn, CableOut: s.CableOut, StrandOut: s.StrandOut})
	}
	return out
}

func portsToJSON(in map[int]model.PortOccupancy) map[string]portJSON {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]portJSON, len(in))
	for k, p := range in {
		out[strconv.Itoa(k)] = portJSON{OccupiedByCableID: p.OccupiedByCableID, OccupiedByStrand: p.OccupiedByStrand}
	}
	return out
}
