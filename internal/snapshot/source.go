package snapshot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/model"
)

// Source reads snapshot exports from a local path or any URL scheme afs
// supports (file://, mem://, s3://, gs://).
type Source struct {
	fs  afs.Service
	url string
}

// NewSource returns a Source for url.
func NewSource(url string) *Source {
	return &Source{fs: afs.New(), url: url}
}

// URL returns the location the source reads from.
func (s *Source) URL() string { return s.url }

// Load downloads and decodes the snapshot. A snapshot exported without a
// version is given its content fingerprint as version.
func (s *Source) Load(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.fs.DownloadWithURL(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", ErrSnapshotUnavailable, s.url, err)
	}
	snap, err := core.LoadSnapshot(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.url, err)
	}
	if snap.Version == "" {
		fp, err := Fingerprint(snap)
		if err != nil {
			return nil, err
		}
		snap.Version = fp
	}
	return snap, nil
}
