// Package hashstore owns the durable fingerprint cache: an append-only
// newline-delimited JSON log of computed hashes plus a parallel error log.
package hashstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
	"github.com/kozaktomas/archive-similarity/internal/imagesource"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
)

// ErrorLogName is the error log file name, placed beside the hash cache.
const ErrorLogName = "errors.jsonl"

// Loader resolves a scan to an image. *imagesource.Source satisfies it.
type Loader interface {
	Load(ctx context.Context, scan imagesource.Scan) (image.Image, error)
}

// Status tells whether GetOrCompute served a hash from the cache.
type Status int

const (
	StatusCached Status = iota
	StatusHashed
)

func (s Status) String() string {
	if s == StatusHashed {
		return "hashed"
	}
	return "cached"
}

// Options configures a Store.
type Options struct {
	CachePath string
	// ErrorPath defaults to errors.jsonl in the cache's directory.
	ErrorPath string
	HashSize  int
	// Force ignores the existing cache and truncates both logs.
	Force  bool
	Loader Loader
	Logger *logrus.Logger
	// RunID tags error log lines. Generated when empty.
	RunID string
}

type errorLine struct {
	XID        string `json:"xid"`
	GroupID    string `json:"group_id"`
	ScanIndex  int    `json:"scan_index"`
	PreviewURL string `json:"preview_url"`
	Error      string `json:"error"`
	RunID      string `json:"run_id"`
}

// Store serves cached fingerprints and computes missing ones. It is safe for
// concurrent use; image loading and hashing run outside the lock.
type Store struct {
	hashSize int
	loader   Loader
	log      *logrus.Logger
	runID    string

	inflight  singleflight.Group
	mu        sync.Mutex
	entries   map[key]similarity.PhotoHash
	cacheFile *os.File
	errorFile *os.File
	loaded    CacheStats
}

// Open loads the cache (unless Force) and opens both logs for appending.
func Open(opts Options) (*Store, error) {
	if opts.HashSize < 2 {
		return nil, fmt.Errorf("%w: got %d", fingerprint.ErrInvalidHashSize, opts.HashSize)
	}
	if opts.CachePath == "" {
		return nil, errors.New("hash cache path is required")
	}
	if opts.ErrorPath == "" {
		opts.ErrorPath = filepath.Join(filepath.Dir(opts.CachePath), ErrorLogName)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	s := &Store{
		hashSize: opts.HashSize,
		loader:   opts.Loader,
		log:      opts.Logger,
		runID:    opts.RunID,
		entries:  make(map[key]similarity.PhotoHash),
	}

	if !opts.Force {
		records, stats, err := ReadCache(opts.CachePath, opts.HashSize)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			s.entries[key{r.XID, r.ScanIndex}] = r
		}
		s.loaded = stats
		s.log.WithFields(logrus.Fields{
			"path":       opts.CachePath,
			"entries":    stats.Entries,
			"mismatched": stats.Mismatched,
			"corrupt":    stats.Corrupt,
		}).Debug("Loaded hash cache")
	}

	var err error
	if s.cacheFile, err = openLog(opts.CachePath, opts.Force); err != nil {
		return nil, err
	}
	if s.errorFile, err = openLog(opts.ErrorPath, opts.Force); err != nil {
		_ = s.cacheFile.Close()
		return nil, err
	}
	return s, nil
}

func openLog(path string, truncate bool) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	flags := os.O_CREATE | os.O_WRONLY
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// RunID returns the identifier written to error log lines.
func (s *Store) RunID() string { return s.runID }

// LoadStats reports what was read from the existing cache on Open.
func (s *Store) LoadStats() CacheStats { return s.loaded }

// Len returns the number of in-memory entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// GetOrCompute returns the fingerprint of a scan. A cache hit refreshes the
// stored group id to the catalog's current one. On a miss the scan is loaded
// and hashed, and the new entry is appended to the cache before returning.
// Failures are appended to the error log and returned.
//
// Concurrent calls for the same scan share one computation; only the caller
// that ran it sees StatusHashed.
func (s *Store) GetOrCompute(ctx context.Context, scan imagesource.Scan) (similarity.PhotoHash, Status, error) {
	k := key{scan.XID, scan.ScanIndex}
	if rec, ok := s.cached(k, scan.GroupID); ok {
		return rec, StatusCached, nil
	}

	ran := false
	v, err, _ := s.inflight.Do(k.String(), func() (any, error) {
		// Another caller may have stored it since the check above.
		if rec, ok := s.cached(k, scan.GroupID); ok {
			return rec, nil
		}
		ran = true
		return s.computeAndStore(ctx, scan)
	})
	if !ran {
		if err != nil {
			return similarity.PhotoHash{}, StatusCached, err
		}
		rec, _ := s.cached(k, scan.GroupID)
		return rec, StatusCached, nil
	}
	if err != nil {
		return similarity.PhotoHash{}, StatusHashed, err
	}
	return v.(similarity.PhotoHash), StatusHashed, nil
}

// cached returns the in-memory entry for k, adopting groupID.
func (s *Store) cached(k key, groupID string) (similarity.PhotoHash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries[k]
	if ok && rec.GroupID != groupID {
		rec.GroupID = groupID
		s.entries[k] = rec
	}
	return rec, ok
}

func (s *Store) computeAndStore(ctx context.Context, scan imagesource.Scan) (similarity.PhotoHash, error) {
	rec, err := s.compute(ctx, scan)
	if err != nil {
		// An interrupted run is not a per-record failure.
		if ctx.Err() != nil {
			return similarity.PhotoHash{}, ctx.Err()
		}
		s.recordError(scan, err)
		return similarity.PhotoHash{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendJSON(s.cacheFile, entryLine{
		XID:       rec.XID,
		GroupID:   rec.GroupID,
		Hash:      rec.Hash.Hex(s.hashSize),
		Algo:      fingerprint.Algo,
		HashSize:  s.hashSize,
		ScanIndex: rec.ScanIndex,
	}); err != nil {
		return similarity.PhotoHash{}, fmt.Errorf("failed to persist hash: %w", err)
	}
	s.entries[key{rec.XID, rec.ScanIndex}] = rec
	return rec, nil
}

func (s *Store) compute(ctx context.Context, scan imagesource.Scan) (similarity.PhotoHash, error) {
	if s.loader == nil {
		return similarity.PhotoHash{}, fmt.Errorf("%w: no image loader configured", imagesource.ErrFetchFailure)
	}
	img, err := s.loader.Load(ctx, scan)
	if err != nil {
		return similarity.PhotoHash{}, err
	}
	h, err := fingerprint.DHash(img, s.hashSize)
	if err != nil {
		return similarity.PhotoHash{}, err
	}
	return similarity.PhotoHash{
		XID:       scan.XID,
		GroupID:   scan.GroupID,
		Hash:      h,
		ScanIndex: scan.ScanIndex,
	}, nil
}

func (s *Store) recordError(scan imagesource.Scan, cause error) {
	s.log.WithFields(logrus.Fields{
		"xid":        scan.XID,
		"scan_index": scan.ScanIndex,
	}).WithError(cause).Warn("Failed to hash scan")

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendJSON(s.errorFile, errorLine{
		XID:        scan.XID,
		GroupID:    scan.GroupID,
		ScanIndex:  scan.ScanIndex,
		PreviewURL: scan.PreviewURL,
		Error:      cause.Error(),
		RunID:      s.runID,
	}); err != nil {
		s.log.WithError(err).Error("Failed to write error log")
	}
}

// appendJSON writes one line and syncs it; callers hold s.mu.
func (s *Store) appendJSON(f *os.File, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

// Close closes both logs.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.cacheFile.Close(), s.errorFile.Close())
}
