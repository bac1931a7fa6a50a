package handlers

import (
	"github.com/kozaktomas/archive-similarity/internal/bktree"
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
)

// Dataset is an in-memory, read-only view of a finished run.
type Dataset struct {
	HashSize int
	Header   similarity.Header

	pairs           []similarity.CandidatePair
	pairsByGroup    map[string][]int
	clustersByGroup map[string][]similarity.VersionCluster
	clusterCount    int
	photos          int
	tree            *bktree.Tree[similarity.PhotoHash]
}

// NewDataset indexes a run. records are cache entries; one representative
// per xid (scan 0 when present) goes into the search tree. Either document
// may be nil.
func NewDataset(hashSize int, records []similarity.PhotoHash, candidates *similarity.CandidatesDocument, clusters *similarity.ClustersDocument) *Dataset {
	d := &Dataset{
		HashSize:        hashSize,
		pairsByGroup:    make(map[string][]int),
		clustersByGroup: make(map[string][]similarity.VersionCluster),
		tree:            bktree.New(func(p similarity.PhotoHash) fingerprint.Hash { return p.Hash }),
	}

	var order []string
	byXID := make(map[string][]similarity.PhotoHash)
	for _, r := range records {
		if _, ok := byXID[r.XID]; !ok {
			order = append(order, r.XID)
		}
		byXID[r.XID] = append(byXID[r.XID], r)
	}
	for _, r := range similarity.Representatives(order, byXID) {
		d.tree.Insert(r)
	}
	d.photos = len(order)

	if candidates != nil {
		d.Header = candidates.Header
		d.pairs = candidates.Pairs
		for i, p := range d.pairs {
			d.pairsByGroup[p.GroupIDA] = append(d.pairsByGroup[p.GroupIDA], i)
			d.pairsByGroup[p.GroupIDB] = append(d.pairsByGroup[p.GroupIDB], i)
		}
	}
	if clusters != nil {
		if d.Header.Algo == "" {
			d.Header = clusters.Header
		}
		for _, c := range clusters.Clusters {
			d.clustersByGroup[c.SeriesID] = append(d.clustersByGroup[c.SeriesID], c)
		}
		d.clusterCount = len(clusters.Clusters)
	}
	return d
}

// Pairs returns every candidate pair touching groupID, or all pairs when
// groupID is empty, in document order.
func (d *Dataset) Pairs(groupID string) []similarity.CandidatePair {
	if groupID == "" {
		return d.pairs
	}
	idx := d.pairsByGroup[groupID]
	out := make([]similarity.CandidatePair, len(idx))
	for i, j := range idx {
		out[i] = d.pairs[j]
	}
	return out
}

// Clusters returns the version clusters of one group.
func (d *Dataset) Clusters(groupID string) []similarity.VersionCluster {
	return d.clustersByGroup[groupID]
}

// Search returns representatives within distance of h.
func (d *Dataset) Search(h fingerprint.Hash, distance int) []bktree.Match[similarity.PhotoHash] {
	return d.tree.Search(h, distance)
}
