package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/model"
)

func loadFixture(t *testing.T) *model.Snapshot {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", "feeder.json"))
	require.NoError(t, err)
	defer f.Close()
	snap, err := core.LoadSnapshot(f)
	require.NoError(t, err)
	return snap
}

// copyFixture writes the feeder fixture into a temp dir and returns its path.
func copyFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "feeder.json"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string]int
	nodes   int
	cables  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{results: make(map[string]int)}
}

func (r *fakeRecorder) IncIndexCache(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result]++
}

func (r *fakeRecorder) SetSnapshotCounts(nodes, cables int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes, r.cables = nodes, cables
}

func (r *fakeRecorder) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[result]
}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]*model.Snapshot
	err   error
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*model.Snapshot)}
}

func (s *memStore) Put(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snaps[snap.Version] = snap
	return nil
}

func (s *memStore) Get(_ context.Context, version string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[version]
	if !ok {
		return nil, errors.New("not found")
	}
	return snap, nil
}
