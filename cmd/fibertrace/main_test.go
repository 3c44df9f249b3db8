package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fibertrace/core"
)

const feederJSON = `{
  "version": "2024-05-01",
  "nodes": [
    { "id": "olt", "kind": "GPON_PORT", "name": "OLT-port", "attributes": { "port": 1 } },
    { "id": "j1", "kind": "JOINT", "name": "Joint J1",
      "attributes": { "splices": [ { "cableIn": "A", "strandIn": 3, "cableOut": "B", "strandOut": 3 } ] } },
    { "id": "p1", "kind": "PCO", "name": "PCO P1",
      "attributes": {
        "ports": { "1": { "occupiedByCableId": "B", "occupiedByStrand": 3 } },
        "subscriberPorts": [ { "port": 1, "client": { "id": "c1", "login": "alice01", "name": "Alice" } } ]
      } }
  ],
  "cables": [
    { "id": "A", "startNodeId": "olt", "endNodeId": "j1", "strandCount": 12, "cableTypeCode": "G652D-12",
      "lengthMeters": 2500, "strands": { "3": { "status": "USED" } } },
    { "id": "B", "startNodeId": "j1", "endNodeId": "p1", "strandCount": 4, "cableTypeCode": "G657A2-4",
      "lengthMeters": 1000, "strands": { "3": { "status": "USED", "downstreamPort": 1, "downstreamNodeId": "p1" } } }
  ]
}`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTraceCommand(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)

	out, err := execute(t, "trace", path, "A", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Cable A strand 3")
	assert.Contains(t, out, "(green, tube 1)")
	assert.Contains(t, out, "Joint J1")
	assert.Contains(t, out, "CONNECTED (client_reached)")
	assert.Contains(t, out, "distance 3,500 m")
}

func TestTraceCommandJSON(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)

	out, err := execute(t, "--json", "trace", path, "A", "1")
	require.NoError(t, err)
	var res core.TraceResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, core.StatusUnused, res.Status)
	assert.Equal(t, core.ReasonUnusedStrand, res.Reason)
}

func TestTraceCommandMaxHops(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)

	out, err := execute(t, "--json", "trace", "--max-hops", "1", path, "A", "3")
	require.NoError(t, err)
	var res core.TraceResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, core.ReasonHopLimit, res.Reason)
}

func TestTraceCommandRejectsBadStrand(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)
	_, err := execute(t, "trace", path, "A", "0")
	assert.Error(t, err)
}

func TestTraceCommandUsesConfigLosses(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)
	cfg := writeTemp(t, "cfg.yaml", "snapshot:\n  url: unused.json\ntrace:\n  loss:\n    perKmDb:\n      G652D: 1.0\n      G657A2: 1.0\n    spliceLossDb: 0.5\n")

	out, err := execute(t, "--json", "--config", cfg, "trace", path, "A", "3")
	require.NoError(t, err)
	var res core.TraceResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 4.0, res.TotalLossDb, 1e-9)
}

func TestValidateCommand(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)
	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3 nodes, 2 cables, 16 strands")
	assert.Contains(t, out, "ok")

	broken := strings.Replace(feederJSON, `"endNodeId": "p1"`, `"endNodeId": "p9"`, 1)
	out, err = execute(t, "validate", writeTemp(t, "broken.json", broken))
	assert.ErrorIs(t, err, errAuditFailed)
	assert.Contains(t, out, "missing_node")
}

func TestValidateCommandJSON(t *testing.T) {
	path := writeTemp(t, "snap.json", feederJSON)
	out, err := execute(t, "--json", "validate", path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestFingerprintCommand(t *testing.T) {
	a := writeTemp(t, "a.json", feederJSON)
	b := writeTemp(t, "b.json", strings.Replace(feederJSON, "2024-05-01", "2024-06-01", 1))

	fa, err := execute(t, "fingerprint", a)
	require.NoError(t, err)
	fb, err := execute(t, "fingerprint", b)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}\n$`), fa)
	assert.Equal(t, fa, fb)
}

func TestLossesCommand(t *testing.T) {
	out, err := execute(t, "losses")
	require.NoError(t, err)
	assert.Contains(t, out, "G652D")
	assert.Contains(t, out, "1:32")
	assert.Contains(t, out, "splice loss 0.10 dB")

	// ratios are listed by increasing loss
	assert.Less(t, strings.Index(out, "1:2 "), strings.Index(out, "1:64"))
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, err := execute(t, "trace", filepath.Join(t.TempDir(), "missing.json"), "A", "1")
	assert.Error(t, err)

	_, err = execute(t, "validate", writeTemp(t, "bad.json", `{"nodes": [{"id": "x", "kind": "ROUTER"}]}`))
	assert.ErrorIs(t, err, core.ErrInvalidSnapshot)
}
