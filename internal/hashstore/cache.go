package hashstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/archive-similarity/internal/catalog"
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
)

// entryLine is one line of the hash cache as written.
type entryLine struct {
	XID       string `json:"xid"`
	GroupID   string `json:"group_id"`
	Hash      string `json:"hash"`
	Algo      string `json:"algo"`
	HashSize  int    `json:"hash_size"`
	ScanIndex int    `json:"scan_index"`
}

// rawLine is the tolerant read form: hash may be a hex string or a JSON
// integer, and older files spell the scan index scanIndex.
type rawLine struct {
	XID            string          `json:"xid"`
	GroupID        string          `json:"group_id"`
	Hash           json.RawMessage `json:"hash"`
	Algo           string          `json:"algo"`
	HashSize       json.RawMessage `json:"hash_size"`
	ScanIndex      json.RawMessage `json:"scan_index"`
	ScanIndexCamel json.RawMessage `json:"scanIndex"`
}

// CacheStats describes what loading a cache file found.
type CacheStats struct {
	Lines      int `json:"lines"`
	Entries    int `json:"entries"`
	XIDs       int `json:"xids"`
	Mismatched int `json:"mismatched"`
	Corrupt    int `json:"corrupt"`
}

type key struct {
	xid  string
	scan int
}

func (k key) String() string {
	return k.xid + "#" + strconv.Itoa(k.scan)
}

// ReadCache loads the hash cache at path, keeping only entries computed with
// dhash at hashSize. Blank and unparsable lines are skipped and counted; a
// later line for the same (xid, scan) replaces an earlier one. A missing file
// is an empty cache.
func ReadCache(path string, hashSize int) ([]similarity.PhotoHash, CacheStats, error) {
	var stats CacheStats

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("failed to open hash cache: %w", err)
	}
	defer func() { _ = f.Close() }()

	index := make(map[key]int)
	var records []similarity.PhotoHash
	xids := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		rec, ok, err := parseLine(line, hashSize)
		if err != nil {
			stats.Corrupt++
			continue
		}
		if !ok {
			stats.Mismatched++
			continue
		}

		k := key{rec.XID, rec.ScanIndex}
		if i, seen := index[k]; seen {
			records[i] = rec
		} else {
			index[k] = len(records)
			records = append(records, rec)
		}
		xids[rec.XID] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read hash cache: %w", err)
	}

	stats.Entries = len(records)
	stats.XIDs = len(xids)
	return records, stats, nil
}

// parseLine returns ok=false for a well-formed line produced with another
// algorithm or hash size.
func parseLine(line []byte, hashSize int) (similarity.PhotoHash, bool, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return similarity.PhotoHash{}, false, err
	}

	if algo := strings.TrimSpace(raw.Algo); algo != "" && algo != fingerprint.Algo {
		return similarity.PhotoHash{}, false, nil
	}
	if size := parseInt(raw.HashSize); size != 0 && size != hashSize {
		return similarity.PhotoHash{}, false, nil
	}

	xid := catalog.NormalizeID(raw.XID)
	groupID := catalog.NormalizeID(raw.GroupID)
	if xid == "" || groupID == "" {
		return similarity.PhotoHash{}, false, errors.New("missing xid or group_id")
	}

	h, err := parseHash(raw.Hash, hashSize)
	if err != nil {
		return similarity.PhotoHash{}, false, err
	}

	scan := raw.ScanIndex
	if isAbsent(scan) {
		scan = raw.ScanIndexCamel
	}
	return similarity.PhotoHash{
		XID:       xid,
		GroupID:   groupID,
		Hash:      h,
		ScanIndex: max(0, parseInt(scan)),
	}, true, nil
}

func parseHash(raw json.RawMessage, hashSize int) (fingerprint.Hash, error) {
	if isAbsent(raw) {
		return nil, errors.New("missing hash")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, errors.New("empty hash")
		}
		return fingerprint.ParseHex(s, hashSize)
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid hash %s: %w", raw, err)
	}
	return fingerprint.ParseHex(strconv.FormatUint(v, 16), hashSize)
}

// parseInt reads a JSON number or numeric string; anything else is 0.
func parseInt(raw json.RawMessage) int {
	if isAbsent(raw) {
		return 0
	}
	s := strings.Trim(string(raw), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
