package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/api"
	"github.com/signalsfoundry/fibertrace/internal/config"
	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/model"
)

func writeSnapshot(t *testing.T) string {
	t.Helper()
	snap := &model.Snapshot{
		Version: "smoke",
		Nodes: []*model.Node{
			{ID: "olt", Kind: model.NodeKindGponPort, Name: "OLT-1", Details: &model.GponPortDetails{Port: 1}},
			{ID: "p1", Kind: model.NodeKindPCO, Name: "PCO P1", Details: &model.PcoDetails{
				Ports:           map[int]model.PortOccupancy{1: {OccupiedByCableID: "A", OccupiedByStrand: 1}},
				SubscriberPorts: []model.SubscriberPort{{Port: 1, Client: &model.Client{ID: "c1", Login: "bob"}}},
			}},
		},
		Cables: []*model.Cable{
			{ID: "A", StartNodeID: "olt", EndNodeID: "p1", StrandCount: 2, TypeCode: "G652D-2", LengthMeters: 100,
				Strands: map[int]model.StrandState{1: {Status: model.StrandUsed, DownstreamPort: 1, DownstreamNodeID: "p1"}}},
		},
	}
	path := filepath.Join(t.TempDir(), "snapshot.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	defer f.Close()
	if err := core.EncodeSnapshot(f, snap); err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	return path
}

func TestTraceServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.Snapshot.URL = writeSnapshot(t)
	cfg.Snapshot.Watch = false
	cfg.Store.Enabled = true
	cfg.Store.InMemory = true
	cfg.Log = logging.Config{Level: "warn", Format: "text"}

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, logging.New(cfg.Log), listeners{grpc: grpcLis, http: httpLis})
	}()

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := api.NewClient(conn).Trace(ctx, api.TraceRequest{CableID: "A", Strand: 1}, grpc.WaitForReady(true))
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if resp.Status != core.StatusConnected || resp.SnapshotVersion != "smoke" {
		t.Fatalf("Trace = %s on %q, want CONNECTED on smoke", resp.Status, resp.SnapshotVersion)
	}

	httpResp, err := http.Get(fmt.Sprintf("http://%s/v1/snapshot", httpLis.Addr()))
	if err != nil {
		t.Fatalf("GET /v1/snapshot: %v", err)
	}
	defer httpResp.Body.Close()
	var info api.SnapshotInfo
	if err := json.NewDecoder(httpResp.Body).Decode(&info); err != nil {
		t.Fatalf("decode snapshot info: %v", err)
	}
	if info.Version != "smoke" || len(info.Archived) != 1 {
		t.Fatalf("snapshot info = %+v", info)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunFailsWithoutSnapshotWhenNotWatching(t *testing.T) {
	cfg := config.Default()
	cfg.Snapshot.URL = filepath.Join(t.TempDir(), "absent.json")
	cfg.Snapshot.Watch = false

	err := run(context.Background(), cfg, logging.Noop(), listeners{})
	if err == nil {
		t.Fatal("run succeeded without a snapshot")
	}
}

func TestLocalPath(t *testing.T) {
	cases := []struct {
		url   string
		path  string
		local bool
	}{
		{"snapshot.json", "snapshot.json", true},
		{"file:///var/lib/snap.json", "/var/lib/snap.json", true},
		{"s3://bucket/snap.json", "", false},
	}
	for _, tc := range cases {
		path, ok := localPath(tc.url)
		if path != tc.path || ok != tc.local {
			t.Errorf("localPath(%q) = %q, %v; want %q, %v", tc.url, path, ok, tc.path, tc.local)
		}
	}
}
