package similarity

import (
	"slices"
	"testing"

	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

func rec(xid, group string, hash uint64, scan int) PhotoHash {
	return PhotoHash{XID: xid, GroupID: group, Hash: fingerprint.FromUint64(hash), ScanIndex: scan}
}

func TestBuildCandidatesSinglePair(t *testing.T) {
	records := []PhotoHash{
		rec("a1", "A", 0x0, 0),
		rec("b1", "B", 0x7, 0),
	}

	pairs := BuildCandidates(records, 5)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	want := CandidatePair{GroupIDA: "A", GroupIDB: "B", Distance: 3, XIDA: "a1", XIDB: "b1"}
	if pairs[0] != want {
		t.Errorf("pair = %+v; want %+v", pairs[0], want)
	}
}

func TestBuildCandidatesKeepsMinimumAndSkipsSameGroup(t *testing.T) {
	records := []PhotoHash{
		rec("a1", "A", 0x0, 0),
		rec("b1", "B", 0x7, 0),
		rec("a2", "A", 0x6, 0), // distance 1 from b1, 2 from a1
	}

	pairs := BuildCandidates(records, 5)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair (no same-group pair), got %d: %+v", len(pairs), pairs)
	}
	want := CandidatePair{GroupIDA: "A", GroupIDB: "B", Distance: 1, XIDA: "a2", XIDB: "b1"}
	if pairs[0] != want {
		t.Errorf("pair = %+v; want %+v", pairs[0], want)
	}
}

func TestBuildCandidatesOrientsByGroupID(t *testing.T) {
	// The later record belongs to the lexicographically smaller group.
	records := []PhotoHash{
		rec("z1", "Z", 0x1, 0),
		rec("m1", "M", 0x0, 0),
	}

	pairs := BuildCandidates(records, 3)
	want := CandidatePair{GroupIDA: "M", GroupIDB: "Z", Distance: 1, XIDA: "m1", XIDB: "z1"}
	if len(pairs) != 1 || pairs[0] != want {
		t.Errorf("pairs = %+v; want [%+v]", pairs, want)
	}
}

func TestBuildCandidatesTieKeepsFirstSeen(t *testing.T) {
	records := []PhotoHash{
		rec("a1", "A", 0x0, 0),
		rec("b1", "B", 0x3, 0), // distance 2
		rec("b2", "B", 0x5, 0), // also distance 2 from a1
	}

	pairs := BuildCandidates(records, 4)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].XIDB != "b1" || pairs[0].Distance != 2 {
		t.Errorf("expected first-seen witness b1 at distance 2, got %+v", pairs[0])
	}
}

func TestBuildCandidatesThreshold(t *testing.T) {
	records := []PhotoHash{
		rec("a1", "A", 0x0, 0),
		rec("b1", "B", 0x7FF, 0), // 11 bits
	}
	if pairs := BuildCandidates(records, 10); len(pairs) != 0 {
		t.Errorf("expected no pairs beyond threshold, got %+v", pairs)
	}
	if pairs := BuildCandidates(nil, 10); pairs == nil || len(pairs) != 0 {
		t.Errorf("expected empty non-nil slice for no records, got %#v", pairs)
	}
}

func TestBuildCandidatesSorted(t *testing.T) {
	records := []PhotoHash{
		rec("c1", "C", 0x0, 0),
		rec("d1", "D", 0xF, 0),   // C-D: 4
		rec("a1", "A", 0x100, 0), // A-C: 1, A-D: 5
		rec("b1", "B", 0x1, 0),   // B-C: 1, B-D: 3, A-B: 2
	}

	pairs := BuildCandidates(records, 5)
	var got []string
	for _, p := range pairs {
		got = append(got, p.GroupIDA+p.GroupIDB)
	}
	want := []string{"AC", "BC", "AB", "BD", "CD", "AD"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v; want %v", got, want)
	}
}

func TestRepresentativesPrefersScanZero(t *testing.T) {
	byXID := map[string][]PhotoHash{
		"x1": {rec("x1", "G", 0x1, 2), rec("x1", "G", 0x2, 0)},
		"x2": {rec("x2", "G", 0x3, 1), rec("x2", "G", 0x4, 2)},
	}

	reps := Representatives([]string{"x2", "missing", "x1"}, byXID)
	if len(reps) != 2 {
		t.Fatalf("expected 2 representatives, got %d", len(reps))
	}
	if reps[0].XID != "x2" || reps[0].ScanIndex != 1 {
		t.Errorf("expected x2 scan 1 first, got %+v", reps[0])
	}
	if reps[1].XID != "x1" || reps[1].ScanIndex != 0 {
		t.Errorf("expected x1 scan 0, got %+v", reps[1])
	}
}
