package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func rec(xid, group string, hash uint64, scan int) similarity.PhotoHash {
	return similarity.PhotoHash{XID: xid, GroupID: group, Hash: fingerprint.FromUint64(hash), ScanIndex: scan}
}

// testDataset builds a small run: three groups, one two-version group.
func testDataset() *Dataset {
	header := similarity.Header{GeneratedAt: "2024-05-01T12:00:00Z", Distance: 10, HashSize: 8, Algo: "dhash"}
	records := []similarity.PhotoHash{
		rec("p1", "G1", 0x0, 0),
		rec("p1", "G1", 0xFFFF, 1),
		rec("p2", "G2", 0xF, 0),
		rec("p3", "G1", 0xC000000000000000, 0),
		rec("p4", "G3", 0xFFFFFFFF00000000, 1),
	}
	candidates := &similarity.CandidatesDocument{
		Header: header,
		Pairs: []similarity.CandidatePair{
			{GroupIDA: "G1", GroupIDB: "G2", Distance: 4, XIDA: "p1", XIDB: "p2"},
			{GroupIDA: "G2", GroupIDB: "G3", Distance: 9, XIDA: "p2", XIDB: "p4"},
		},
	}
	clusters := &similarity.ClustersDocument{
		Header: header,
		Clusters: []similarity.VersionCluster{
			{SeriesID: "G1", VersionID: "v1", XIDs: []string{"p1", "p3"}, RepresentativeXID: "p1", MaxDistance: 2},
			{SeriesID: "G2", VersionID: "v1", XIDs: []string{"p2"}, RepresentativeXID: "p2"},
			{SeriesID: "G3", VersionID: "v1", XIDs: []string{"p4"}, RepresentativeXID: "p4"},
		},
	}
	return NewDataset(8, records, candidates, clusters)
}

func testHandler() *SimilarityHandler {
	logger, _ := test.NewNullLogger()
	return NewSimilarityHandler(testDataset(), logger)
}
