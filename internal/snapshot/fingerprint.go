package snapshot

import (
	"fmt"

	"github.com/minio/highwayhash"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/model"
)

var fingerprintKey = []byte("fibertrace/snapshot/fingerprint/")

// Fingerprint returns a 64-bit HighwayHash of the snapshot's canonical
// encoding, as 16 hex digits. The version string is not part of the hash, so
// two exports of identical plant data fingerprint the same.
func Fingerprint(snap *model.Snapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("fingerprint: nil snapshot")
	}
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	unversioned := *snap
	unversioned.Version = ""
	if err := core.EncodeSnapshot(h, &unversioned); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
