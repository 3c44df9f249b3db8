package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/snapshot"
	"github.com/signalsfoundry/fibertrace/model"
)

var _ snapshot.Store = (*Store)(nil)

func testSnapshot(version string) *model.Snapshot {
	return &model.Snapshot{
		Version: version,
		Nodes: []*model.Node{
			{ID: "olt", Kind: model.NodeKindGponPort, Name: "OLT-1", Details: &model.GponPortDetails{Port: 1}},
			{ID: "p1", Kind: model.NodeKindPCO, Name: "PCO P1", Details: &model.PcoDetails{
				Ports: map[int]model.PortOccupancy{1: {OccupiedByCableID: "A", OccupiedByStrand: 1}},
				SubscriberPorts: []model.SubscriberPort{
					{Port: 1, Client: &model.Client{ID: "c1", Login: "bob", Status: "ACTIVE"}},
				},
			}},
		},
		Cables: []*model.Cable{
			{ID: "A", StartNodeID: "olt", EndNodeID: "p1", StrandCount: 2, TypeCode: "G657A2-2", LengthMeters: 120,
				Strands: map[int]model.StrandState{1: {Status: model.StrandUsed, DownstreamPort: 1, DownstreamNodeID: "p1"}}},
		},
	}
}

// openTest opens an in-memory store with a controllable clock.
func openTest(t *testing.T, retain int) *Store {
	t.Helper()
	cfg := InMemoryConfig()
	cfg.Retain = retain
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestPutGetRoundTripsTraceBehaviour(t *testing.T) {
	s := openTest(t, 0)
	ctx := context.Background()
	snap := testSnapshot("v1")
	require.NoError(t, s.Put(ctx, snap))

	got, err := s.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.Len(t, got.Nodes, 2)

	want := core.TraceSnapshot(snap, "A", 1)
	res := core.TraceSnapshot(got, "A", 1)
	assert.Equal(t, want, res)
	assert.Equal(t, core.StatusConnected, res.Status)
}

func TestGetUnknownVersion(t *testing.T) {
	s := openTest(t, 0)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestPutRequiresVersion(t *testing.T) {
	s := openTest(t, 0)
	assert.ErrorIs(t, s.Put(context.Background(), testSnapshot("")), ErrEmptyVersion)
	assert.ErrorIs(t, s.Put(context.Background(), nil), ErrEmptyVersion)
}

func TestLatestFollowsLastPut(t *testing.T) {
	s := openTest(t, 0)
	ctx := context.Background()

	_, err := s.Latest(ctx)
	require.ErrorIs(t, err, ErrVersionNotFound)

	require.NoError(t, s.Put(ctx, testSnapshot("v1")))
	require.NoError(t, s.Put(ctx, testSnapshot("v2")))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Version)
}

func TestListIsOldestFirstWithCounts(t *testing.T) {
	s := openTest(t, 0)
	ctx := context.Background()
	for _, v := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Put(ctx, testSnapshot(v)))
	}

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{infos[0].Version, infos[1].Version, infos[2].Version})
	assert.Equal(t, 2, infos[0].Nodes)
	assert.Equal(t, 1, infos[0].Cables)
}

func TestRetainPrunesOldestVersions(t *testing.T) {
	s := openTest(t, 2)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Put(ctx, testSnapshot(fmt.Sprintf("v%d", i))))
	}

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "v3", infos[0].Version)
	assert.Equal(t, "v4", infos[1].Version)

	_, err = s.Get(ctx, "v1")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestDelete(t *testing.T) {
	s := openTest(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testSnapshot("v1")))

	require.NoError(t, s.Delete(ctx, "v1"))
	assert.ErrorIs(t, s.Delete(ctx, "v1"), ErrVersionNotFound)
	_, err := s.Get(ctx, "v1")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestPersistentStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	s, err := Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), testSnapshot("v1")))
	require.NoError(t, s.Close())

	s, err = Open(cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	s := openTest(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Put(ctx, testSnapshot("v1")), context.Canceled)
}
