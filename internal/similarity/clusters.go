package similarity

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/kozaktomas/archive-similarity/internal/bktree"
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

// VersionCluster is a set of xids within one group that depict the same image.
type VersionCluster struct {
	SeriesID          string   `json:"series_id"`
	VersionID         string   `json:"version_id"`
	XIDs              []string `json:"xids"`
	RepresentativeXID string   `json:"representative_xid"`
	MaxDistance       int      `json:"max_distance"`
}

// BuildClusters partitions every group into version clusters. Groups are
// processed in order of their first record; records keep their relative
// order within a group.
func BuildClusters(records []PhotoHash, distance int) []VersionCluster {
	var groupOrder []string
	byGroup := make(map[string][]PhotoHash)
	for _, r := range records {
		if _, ok := byGroup[r.GroupID]; !ok {
			groupOrder = append(groupOrder, r.GroupID)
		}
		byGroup[r.GroupID] = append(byGroup[r.GroupID], r)
	}

	clusters := make([]VersionCluster, 0, len(groupOrder))
	for _, groupID := range groupOrder {
		clusters = append(clusters, ClusterGroup(groupID, byGroup[groupID], distance)...)
	}
	return clusters
}

// ClusterGroup clusters the scans of a single group.
//
// Every scan is searched against the scans inserted before it, and xids of
// matches within distance are unioned. Clusters are ordered by size
// descending, then by their comma-joined sorted members, and numbered v1, v2...
func ClusterGroup(groupID string, records []PhotoHash, distance int) []VersionCluster {
	byXID := make(map[string][]PhotoHash)
	for _, r := range records {
		byXID[r.XID] = append(byXID[r.XID], r)
	}
	if len(byXID) == 0 {
		return nil
	}

	xids := make([]string, 0, len(byXID))
	for xid := range byXID {
		xids = append(xids, xid)
	}
	slices.Sort(xids)
	position := make(map[string]int, len(xids))
	for i, xid := range xids {
		position[xid] = i
	}

	uf := newUnionFind(len(xids))
	tree := bktree.New(photoHashKey)
	for _, record := range records {
		for _, m := range tree.Search(record.Hash, distance) {
			if m.Item.XID == record.XID {
				continue
			}
			uf.union(position[record.XID], position[m.Item.XID])
		}
		tree.Insert(record)
	}

	// xids are sorted, so members are appended in sorted order.
	members := make(map[int][]string)
	for i, xid := range xids {
		root := uf.find(i)
		members[root] = append(members[root], xid)
	}
	groups := make([][]string, 0, len(members))
	for _, m := range members {
		groups = append(groups, m)
	}
	slices.SortFunc(groups, func(a, b []string) int {
		return cmp.Or(
			cmp.Compare(len(b), len(a)),
			cmp.Compare(strings.Join(a, ","), strings.Join(b, ",")),
		)
	})

	clusters := make([]VersionCluster, 0, len(groups))
	for i, cluster := range groups {
		clusters = append(clusters, VersionCluster{
			SeriesID:          groupID,
			VersionID:         fmt.Sprintf("v%d", i+1),
			XIDs:              cluster,
			RepresentativeXID: cluster[0],
			MaxDistance:       clusterDiameter(cluster, byXID),
		})
	}
	return clusters
}

// clusterDiameter is the largest, over member pairs, of the smallest
// distance between any scan of one and any scan of the other.
func clusterDiameter(xids []string, byXID map[string][]PhotoHash) int {
	diameter := 0
	for i := range xids {
		for j := i + 1; j < len(xids); j++ {
			if d := minScanDistance(byXID[xids[i]], byXID[xids[j]]); d > diameter {
				diameter = d
			}
		}
	}
	return diameter
}

func minScanDistance(a, b []PhotoHash) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	best := -1
	for _, left := range a {
		for _, right := range b {
			d := fingerprint.HammingDistance(left.Hash, right.Hash)
			if best < 0 || d < best {
				best = d
				if best == 0 {
					return 0
				}
			}
		}
	}
	return best
}
