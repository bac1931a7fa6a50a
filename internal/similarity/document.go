package similarity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

// TimestampLayout is the UTC timestamp format used in output documents.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Header carries the run parameters shared by both output documents.
type Header struct {
	GeneratedAt string `json:"generated_at"`
	Distance    int    `json:"distance"`
	HashSize    int    `json:"hash_size"`
	Algo        string `json:"algo"`
}

// NewHeader stamps a header with the given time.
func NewHeader(now time.Time, distance, hashSize int) Header {
	return Header{
		GeneratedAt: now.UTC().Format(TimestampLayout),
		Distance:    distance,
		HashSize:    hashSize,
		Algo:        fingerprint.Algo,
	}
}

// CandidatesDocument is the serialized candidate-pairs output.
type CandidatesDocument struct {
	Header
	Pairs []CandidatePair `json:"pairs"`
}

// ClustersDocument is the serialized version-clusters output.
type ClustersDocument struct {
	Header
	Clusters []VersionCluster `json:"clusters"`
}

// WriteDocument writes v as indented JSON, creating parent directories.
func WriteDocument(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadCandidates loads a candidate-pairs document.
func ReadCandidates(path string) (*CandidatesDocument, error) {
	return readDocument[CandidatesDocument](path)
}

// ReadClusters loads a clusters document.
func ReadClusters(path string) (*ClustersDocument, error) {
	return readDocument[ClustersDocument](path)
}

func readDocument[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &doc, nil
}
