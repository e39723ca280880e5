package nitree

import (
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// A Fingerprint is a BLAKE2b-256 digest of the identity, parent pointer and
// left bound of every node in a collection.  Derived and cached columns are
// left out, so two stores holding the same tree agree regardless of Columns.
type Fingerprint [blake2b.Size256]byte

// FingerprintOf digests nodes in ID order.
func FingerprintOf(nodes []Node) (Fingerprint, error) {
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	data, err := WriteSnapshot(sorted, Columns{})
	if err != nil {
		return Fingerprint{}, err
	}
	return blake2b.Sum256(data), nil
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
