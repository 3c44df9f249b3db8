// Package store archives snapshot versions in an embedded BadgerDB so traces
// can be pinned to a version after the served snapshot has moved on.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/model"
)

var (
	// ErrVersionNotFound is returned for versions that are not archived.
	ErrVersionNotFound = errors.New("snapshot version not found")
	// ErrEmptyVersion rejects snapshots stored without a version.
	ErrEmptyVersion = errors.New("snapshot has no version")
)

const (
	snapPrefix = "snap/"
	latestKey  = "meta/latest"
)

// Config controls where and how snapshots are stored.
type Config struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"inMemory"`
	SyncWrites bool   `yaml:"syncWrites"`

	// Retain caps the number of archived versions; the oldest are deleted
	// first. Zero keeps everything.
	Retain int `yaml:"retain" validate:"gte=0"`

	GCInterval     time.Duration `yaml:"gcInterval"`
	GCDiscardRatio float64       `yaml:"gcDiscardRatio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns a persistent configuration without a path.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		Retain:         20,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests and one-shot tools.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Info describes one archived version.
type Info struct {
	Version  string    `json:"version"`
	StoredAt time.Time `json:"storedAt"`
	Nodes    int       `json:"nodes"`
	Cables   int       `json:"cables"`
}

type record struct {
	Info
	Snapshot json.RawMessage `json:"snapshot"`
}

// Store is a BadgerDB-backed snapshot archive. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	retain int
	log    logging.Logger
	now    func() time.Time

	stopGC chan struct{}
	gcDone chan struct{}
}

// Open opens (or creates) the store described by cfg.
func Open(cfg Config, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(&badgerLogger{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}

	s := &Store{db: db, retain: cfg.Retain, log: log, now: time.Now}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}

// Put archives snap under its version and marks it as latest. Storing an
// existing version replaces it.
func (s *Store) Put(ctx context.Context, snap *model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil || snap.Version == "" {
		return ErrEmptyVersion
	}

	var buf bytes.Buffer
	if err := core.EncodeSnapshot(&buf, snap); err != nil {
		return fmt.Errorf("store: encode %s: %w", snap.Version, err)
	}
	rec := record{
		Info: Info{
			Version:  snap.Version,
			StoredAt: s.now().UTC(),
			Nodes:    len(snap.Nodes),
			Cables:   len(snap.Cables),
		},
		Snapshot: json.RawMessage(bytes.TrimSpace(buf.Bytes())),
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", snap.Version, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(snapPrefix+snap.Version), val); err != nil {
			return err
		}
		return txn.Set([]byte(latestKey), []byte(snap.Version))
	})
	if err != nil {
		return fmt.Errorf("store: put %s: %w", snap.Version, err)
	}
	return s.prune(ctx)
}

// Get returns the archived snapshot for version.
func (s *Store) Get(ctx context.Context, version string) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapPrefix + version))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", version, err)
	}
	snap, err := core.LoadSnapshot(bytes.NewReader(rec.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", version, err)
	}
	return snap, nil
}

// Latest returns the most recently stored snapshot.
func (s *Store) Latest(ctx context.Context) (*model.Snapshot, error) {
	var version string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		version = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: store is empty", ErrVersionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest: %w", err)
	}
	return s.Get(ctx, version)
}

// List returns the archived versions, oldest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Info
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(snapPrefix), PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			out = append(out, rec.Info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].StoredAt.Before(out[j].StoredAt)
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// Delete removes version from the archive.
func (s *Store) Delete(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(snapPrefix + version)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q", ErrVersionNotFound, version)
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (s *Store) prune(ctx context.Context) error {
	if s.retain <= 0 {
		return nil
	}
	infos, err := s.List(ctx)
	if err != nil {
		return err
	}
	for len(infos) > s.retain {
		old := infos[0]
		infos = infos[1:]
		if err := s.Delete(ctx, old.Version); err != nil && !errors.Is(err, ErrVersionNotFound) {
			return err
		}
		s.log.Debug(ctx, "pruned archived snapshot", logging.String("version", old.Version))
	}
	return nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn(context.Background(), "badger value log GC failed", logging.Err(err))
			}
		}
	}
}

// badgerLogger routes badger's internal logging into the service logger.
// Info and debug chatter is demoted to debug.
type badgerLogger struct {
	log logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...), logging.String("component", "badger"))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...), logging.String("component", "badger"))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...), logging.String("component", "badger"))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...), logging.String("component", "badger"))
}
