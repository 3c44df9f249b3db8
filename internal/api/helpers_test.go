package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fibertrace/internal/snapshot"
	"github.com/signalsfoundry/fibertrace/internal/store"
	"github.com/signalsfoundry/fibertrace/model"
)

// plant returns OLT --A(1)--> PCO P1 [port 1: bob]. When spare is true the
// PCO has no client, so strand 1 ends UNUSED instead of CONNECTED.
func plant(version string, spare bool) *model.Snapshot {
	sub := model.SubscriberPort{Port: 1, Client: &model.Client{ID: "c1", Login: "bob", Name: "Bob", Status: "ACTIVE"}}
	if spare {
		sub.Client = nil
	}
	return &model.Snapshot{
		Version: version,
		Nodes: []*model.Node{
			{ID: "olt", Kind: model.NodeKindGponPort, Name: "OLT-1", Details: &model.GponPortDetails{Port: 1}},
			{ID: "p1", Kind: model.NodeKindPCO, Name: "PCO P1", Details: &model.PcoDetails{
				Ports:           map[int]model.PortOccupancy{1: {OccupiedByCableID: "A", OccupiedByStrand: 1}},
				SubscriberPorts: []model.SubscriberPort{sub},
			}},
		},
		Cables: []*model.Cable{
			{ID: "A", StartNodeID: "olt", EndNodeID: "p1", StrandCount: 4, TypeCode: "G657A2-4", LengthMeters: 250,
				Strands: map[int]model.StrandState{
					1: {Status: model.StrandUsed, DownstreamPort: 1, DownstreamNodeID: "p1"},
					2: {Status: model.StrandDamaged},
				}},
		},
	}
}

// newTestService serves plant("v2") and archives plant("v1") with a spare PCO.
func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *snapshot.Holder) {
	t.Helper()
	st, err := store.Open(store.InMemoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Put(ctx, plant("v1", true)))
	current := plant("v2", false)
	require.NoError(t, st.Put(ctx, current))

	holder := snapshot.NewHolder()
	holder.Swap(current)

	opts = append([]ServiceOption{WithArchive(st, snapshot.NewIndexCache(2, nil))}, opts...)
	return NewService(holder, nil, opts...), holder
}
