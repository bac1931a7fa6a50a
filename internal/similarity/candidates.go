package similarity

import (
	"cmp"
	"slices"

	"github.com/kozaktomas/archive-similarity/internal/bktree"
)

// CandidatePair is the closest cross-group witness for an unordered pair of
// groups. GroupIDA sorts before GroupIDB.
type CandidatePair struct {
	GroupIDA string `json:"group_id_a"`
	GroupIDB string `json:"group_id_b"`
	Distance int    `json:"distance"`
	XIDA     string `json:"xid_a"`
	XIDB     string `json:"xid_b"`
}

type groupPair struct{ a, b string }

// BuildCandidates finds, for every pair of distinct groups, the closest pair
// of records within distance.
//
// Records are fed through one BK-tree in order: each record is searched
// against everything inserted before it, then inserted. Only a strictly
// smaller distance replaces a stored witness, so ties keep the first one
// seen. The result is sorted by distance, then by group ids.
func BuildCandidates(records []PhotoHash, distance int) []CandidatePair {
	tree := bktree.New(photoHashKey)
	index := make(map[groupPair]int)
	pairs := make([]CandidatePair, 0)

	for _, record := range records {
		for _, m := range tree.Search(record.Hash, distance) {
			match := m.Item
			if match.GroupID == record.GroupID {
				continue
			}

			key := groupPair{a: record.GroupID, b: match.GroupID}
			xidA, xidB := record.XID, match.XID
			if key.b < key.a {
				key.a, key.b = key.b, key.a
				xidA, xidB = xidB, xidA
			}

			candidate := CandidatePair{
				GroupIDA: key.a,
				GroupIDB: key.b,
				Distance: m.Distance,
				XIDA:     xidA,
				XIDB:     xidB,
			}
			if i, ok := index[key]; ok {
				if m.Distance < pairs[i].Distance {
					pairs[i] = candidate
				}
				continue
			}
			index[key] = len(pairs)
			pairs = append(pairs, candidate)
		}
		tree.Insert(record)
	}

	SortCandidates(pairs)
	return pairs
}

// SortCandidates orders pairs by distance, then group_id_a, then group_id_b.
func SortCandidates(pairs []CandidatePair) {
	slices.SortStableFunc(pairs, func(x, y CandidatePair) int {
		return cmp.Or(
			cmp.Compare(x.Distance, y.Distance),
			cmp.Compare(x.GroupIDA, y.GroupIDA),
			cmp.Compare(x.GroupIDB, y.GroupIDB),
		)
	})
}
