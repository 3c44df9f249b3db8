package core

import (
	"testing"

	"github.com/signalsfoundry/fibertrace/kb"
	"github.com/signalsfoundry/fibertrace/model"
)

func hasIssue(issues []Issue, subject, code string) bool {
	for _, i := range issues {
		if i.Subject == subject && i.Code == code {
			return true
		}
	}
	return false
}

func TestAudit_CleanSnapshot(t *testing.T) {
	issues := Audit(kb.Build(feederSnapshot()))
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	if HasErrors(issues) {
		t.Fatalf("HasErrors reported true for a clean snapshot")
	}
}

func TestAudit_ReportsBrokenReferences(t *testing.T) {
	snap := feederSnapshot()
	findCable(t, snap, "A").EndNodeID = "ghost"
	findCable(t, snap, "B").TypeCode = "G652D-24"
	findCable(t, snap, "C").Strands[9] = model.StrandState{Status: model.StrandUsed}
	findNode(t, snap, "j1").Details = &model.JointDetails{Splices: []model.Splice{
		{CableIn: "A", StrandIn: 3, CableOut: "nope", StrandOut: 1},
		{CableIn: "B", StrandIn: 30, CableOut: "C", StrandOut: 1},
	}}
	snap.Nodes = append(snap.Nodes, &model.Node{ID: "j1", Kind: model.NodeKindJoint})

	issues := Audit(kb.Build(snap))

	want := []struct{ subject, code string }{
		{"cable:A", "missing_node"},
		{"cable:B", "strand_count_mismatch"},
		{"cable:C", "strand_out_of_range"},
		{"node:j1", "missing_cable"},
		{"node:j1", "strand_out_of_range"},
		{"node:j1", "detached_cable"},
		{"node:j1", "duplicate_id"},
	}
	for _, w := range want {
		if !hasIssue(issues, w.subject, w.code) {
			t.Errorf("missing issue %s/%s in %v", w.subject, w.code, issues)
		}
	}
	if !HasErrors(issues) {
		t.Fatalf("HasErrors = false, want true")
	}

	for i := 1; i < len(issues); i++ {
		a, b := issues[i-1], issues[i]
		if a.Subject > b.Subject || (a.Subject == b.Subject && a.Code > b.Code) {
			t.Fatalf("issues not sorted at %d: %v before %v", i, a, b)
		}
	}
}
