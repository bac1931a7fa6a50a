// Package similarity turns per-scan fingerprints into cross-group candidate
// pairs and within-group version clusters.
package similarity

import "github.com/kozaktomas/archive-similarity/internal/fingerprint"

// PhotoHash is the fingerprint of one scan of one catalog photo.
type PhotoHash struct {
	XID       string
	GroupID   string
	Hash      fingerprint.Hash
	ScanIndex int
}

func photoHashKey(p PhotoHash) fingerprint.Hash { return p.Hash }

// Representatives picks one record per xid, in the given xid order: scan 0
// when present, otherwise the first hashed scan. Xids without any hashed
// scan are skipped.
func Representatives(order []string, byXID map[string][]PhotoHash) []PhotoHash {
	out := make([]PhotoHash, 0, len(order))
	for _, xid := range order {
		scans := byXID[xid]
		if len(scans) == 0 {
			continue
		}
		primary := scans[0]
		for _, s := range scans {
			if s.ScanIndex == 0 {
				primary = s
				break
			}
		}
		out = append(out, primary)
	}
	return out
}
