package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

// Severity grades an audit issue.
type Severity string

const (
	// SeverityError marks data that will make traces through it BROKEN.
	SeverityError Severity = "error"
	// SeverityWarning marks suspicious data that traces tolerate.
	SeverityWarning Severity = "warning"
)

// Issue is one data-integrity finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s [%s]: %s", i.Severity, i.Subject, i.Code, i.Message)
}

// Audit checks the referential integrity of an indexed snapshot: dangling node
// and cable references, strand indexes outside a cable's range, splices on
// cables that do not reach the joint, and type codes that disagree with the
// strand count. Issues are ordered by subject, then code.
func Audit(idx *kb.Index) []Issue {
	var issues []Issue
	add := func(sev Severity, code, subject, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)})
	}

	for _, d := range idx.Duplicates() {
		add(SeverityError, "duplicate_id", d, "id appears more than once; the first occurrence is used")
	}

	for _, c := range idx.Cables() {
		subject := "cable:" + c.ID
		for _, end := range []string{c.StartNodeID, c.EndNodeID} {
			if end == "" {
				add(SeverityError, "missing_endpoint", subject, "cable has no node at one end")
				continue
			}
			if _, ok := idx.NodeByID(end); !ok {
				add(SeverityError, "missing_node", subject, "cable ends at unknown node %q", end)
			}
		}
		if c.LengthMeters <= 0 {
			add(SeverityWarning, "zero_length", subject, "cable length is %g m", c.LengthMeters)
		}
		if c.TypeCode != "" {
			ct, err := ParseCableType(c.TypeCode)
			switch {
			case err != nil:
				add(SeverityWarning, "bad_type_code", subject, "%v", err)
			case ct.Strands != c.StrandCount:
				add(SeverityWarning, "strand_count_mismatch", subject,
					"type code %s implies %d strands, cable has %d", c.TypeCode, ct.Strands, c.StrandCount)
			}
		}
		for _, k := range strandIndexes(c) {
			st := c.Strands[k]
			if !c.HasStrand(k) {
				add(SeverityWarning, "strand_out_of_range", subject, "status recorded for strand %d of %d", k, c.StrandCount)
			}
			if st.DownstreamNodeID == "" {
				continue
			}
			if _, ok := idx.NodeByID(st.DownstreamNodeID); !ok {
				add(SeverityError, "missing_node", subject, "strand %d is patched to unknown node %q", k, st.DownstreamNodeID)
			} else if !c.Touches(st.DownstreamNodeID) {
				add(SeverityWarning, "patch_mismatch", subject,
					"strand %d is patched to %s which the cable does not reach", k, st.DownstreamNodeID)
			}
		}
	}

	for _, n := range idx.Nodes() {
		subject := "node:" + n.ID
		if !n.Kind.Valid() {
			add(SeverityError, "unknown_kind", subject, "unknown node kind %q", n.Kind)
		}
		for i, sp := range n.SpliceTable() {
			checkStrandRef(idx, n, fmt.Sprintf("splice %d", i+1), sp.CableIn, sp.StrandIn, add)
			checkStrandRef(idx, n, fmt.Sprintf("splice %d", i+1), sp.CableOut, sp.StrandOut, add)
		}
		ports := make([]int, 0, len(n.PortMap()))
		for p := range n.PortMap() {
			ports = append(ports, p)
		}
		sort.Ints(ports)
		for _, p := range ports {
			occ := n.PortMap()[p]
			if !occ.Occupied() {
				continue
			}
			checkStrandRef(idx, n, fmt.Sprintf("port %d", p), occ.OccupiedByCableID, occ.OccupiedByStrand, add)
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Subject != issues[j].Subject {
			return issues[i].Subject < issues[j].Subject
		}
		return issues[i].Code < issues[j].Code
	})
	return issues
}

func checkStrandRef(idx *kb.Index, n *model.Node, what, cableID string, strand int,
	add func(Severity, string, string, string, ...any)) {
	subject := "node:" + n.ID
	c, ok := idx.CableByID(cableID)
	if !ok {
		add(SeverityError, "missing_cable", subject, "%s references unknown cable %q", what, cableID)
		return
	}
	if !c.HasStrand(strand) {
		add(SeverityError, "strand_out_of_range", subject,
			"%s references strand %d of cable %s which has %d strands", what, strand, c.ID, c.StrandCount)
	}
	if !c.Touches(n.ID) {
		add(SeverityWarning, "detached_cable", subject, "%s references cable %s which does not reach this node", what, c.ID)
	}
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
