// Package pipeline drives a similarity run: it fills the hash store from the
// catalog, then builds candidate pairs and version clusters and writes them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/archive-similarity/internal/catalog"
	"github.com/kozaktomas/archive-similarity/internal/constants"
	"github.com/kozaktomas/archive-similarity/internal/hashstore"
	"github.com/kozaktomas/archive-similarity/internal/imagesource"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
)

// Hasher is the part of the hash store the pipeline needs.
type Hasher interface {
	GetOrCompute(ctx context.Context, scan imagesource.Scan) (similarity.PhotoHash, hashstore.Status, error)
}

// Progress receives one Add(1) per processed scan. A progressbar satisfies it.
type Progress interface {
	Add(n int) error
}

// Options configures Run.
type Options struct {
	Distance    int
	HashSize    int
	Concurrency int
	// Delay is slept after every freshly computed hash.
	Delay time.Duration

	// Output paths; an empty path skips that document.
	OutputPath         string
	ClustersOutputPath string

	Progress Progress
	Logger   *logrus.Logger
	Now      func() time.Time
}

// Summary holds the counts reported at the end of a run.
type Summary struct {
	Photos     int `json:"photos"`
	Scans      int `json:"scans"`
	Processed  int `json:"processed"`
	Hashed     int `json:"hashed"`
	Cached     int `json:"cached"`
	Errors     int `json:"errors"`
	Candidates int `json:"candidates"`
	Clusters   int `json:"clusters"`
}

// Result is the outcome of a run.
type Result struct {
	Summary
	Candidates []similarity.CandidatePair
	Clusters   []similarity.VersionCluster
}

type outcome struct {
	record similarity.PhotoHash
	ok     bool
}

// Run hashes every scan of photos through store, then builds and writes the
// candidate and cluster documents. Per-scan failures are counted, not
// returned; only cancellation and output errors abort the run.
//
// Scans may be hashed concurrently, but records are collected afterwards in
// catalog order (photos in order, scans ascending) so the output does not
// depend on scheduling.
func Run(ctx context.Context, photos []catalog.Photo, store Hasher, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	scans := expand(photos)
	counter := newCounter(len(scans), opts.Logger, opts.Progress == nil)
	res := &Result{Summary: Summary{Photos: len(photos), Scans: len(scans)}}

	if len(scans) > 0 {
		opts.Logger.Logf(counter.level, "Processing %d scans across %d photos", len(scans), len(photos))
	}

	outcomes := make([]outcome, len(scans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, scan := range scans {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, status, err := store.GetOrCompute(gctx, scan)
			if err != nil {
				if gctx.Err() != nil && isCancellation(err) {
					return err
				}
				counter.failed(opts.Progress)
				return nil
			}
			outcomes[i] = outcome{record: rec, ok: true}
			counter.done(status, opts.Progress)

			if status == hashstore.StatusHashed && opts.Delay > 0 {
				return sleep(gctx, opts.Delay)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counter.report()
	res.Processed, res.Hashed, res.Cached, res.Errors = counter.snapshot()

	order, byXID := collect(outcomes)
	representatives := similarity.Representatives(order, byXID)
	var all []similarity.PhotoHash
	for _, xid := range order {
		all = append(all, byXID[xid]...)
	}

	res.Candidates = similarity.BuildCandidates(representatives, opts.Distance)
	res.Clusters = similarity.BuildClusters(all, opts.Distance)
	res.Summary.Candidates = len(res.Candidates)
	res.Summary.Clusters = len(res.Clusters)

	header := similarity.NewHeader(opts.Now(), opts.Distance, opts.HashSize)
	if opts.OutputPath != "" {
		doc := similarity.CandidatesDocument{Header: header, Pairs: res.Candidates}
		if err := similarity.WriteDocument(opts.OutputPath, doc); err != nil {
			return nil, fmt.Errorf("failed to write candidates: %w", err)
		}
		opts.Logger.Infof("Wrote %d candidates to %s", len(res.Candidates), opts.OutputPath)
	}
	if opts.ClustersOutputPath != "" {
		doc := similarity.ClustersDocument{Header: header, Clusters: res.Clusters}
		if err := similarity.WriteDocument(opts.ClustersOutputPath, doc); err != nil {
			return nil, fmt.Errorf("failed to write clusters: %w", err)
		}
		opts.Logger.Infof("Wrote %d clusters to %s", len(res.Clusters), opts.ClustersOutputPath)
	}

	return res, nil
}

// expand lists every (photo, scan) unit in catalog order.
func expand(photos []catalog.Photo) []imagesource.Scan {
	scans := make([]imagesource.Scan, 0, catalog.CountScans(photos))
	for _, p := range photos {
		for i, preview := range p.Scans() {
			scans = append(scans, imagesource.Scan{
				XID:        p.ID,
				GroupID:    p.GroupID,
				ScanIndex:  i,
				PreviewURL: preview,
			})
		}
	}
	return scans
}

// collect groups successful outcomes by xid in first-appearance order. A
// scan listed twice keeps its last outcome.
func collect(outcomes []outcome) ([]string, map[string][]similarity.PhotoHash) {
	var order []string
	byXID := make(map[string][]similarity.PhotoHash)
	pos := make(map[imagesource.Scan]int)

	for _, o := range outcomes {
		if !o.ok {
			continue
		}
		xid := o.record.XID
		if _, seen := byXID[xid]; !seen {
			order = append(order, xid)
		}
		k := imagesource.Scan{XID: xid, ScanIndex: o.record.ScanIndex}
		if j, dup := pos[k]; dup {
			byXID[xid][j] = o.record
			continue
		}
		pos[k] = len(byXID[xid])
		byXID[xid] = append(byXID[xid], o.record)
	}
	return order, byXID
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// counter tracks run totals and logs a progress line every ~2% of scans,
// at info level unless a progress bar is already showing it.
type counter struct {
	mu          sync.Mutex
	log         *logrus.Logger
	level       logrus.Level
	total       int
	reportEvery int
	processed   int
	hashed      int
	cached      int
	errors      int
}

func newCounter(total int, log *logrus.Logger, verbose bool) *counter {
	level := logrus.DebugLevel
	if verbose {
		level = logrus.InfoLevel
	}
	return &counter{log: log, level: level, total: total, reportEvery: max(1, total/constants.ProgressReportSteps)}
}

func (c *counter) done(status hashstore.Status, p Progress) {
	c.mu.Lock()
	if status == hashstore.StatusHashed {
		c.hashed++
	} else {
		c.cached++
	}
	c.step()
	c.mu.Unlock()
	if p != nil {
		_ = p.Add(1)
	}
}

func (c *counter) failed(p Progress) {
	c.mu.Lock()
	c.errors++
	c.step()
	c.mu.Unlock()
	if p != nil {
		_ = p.Add(1)
	}
}

// step is called with c.mu held.
func (c *counter) step() {
	c.processed++
	if c.processed%c.reportEvery == 0 {
		c.logLocked()
	}
}

func (c *counter) report() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total > 0 {
		c.logLocked()
	}
}

func (c *counter) logLocked() {
	c.log.WithFields(logrus.Fields{
		"processed": c.processed,
		"total":     c.total,
		"hashed":    c.hashed,
		"cached":    c.cached,
		"errors":    c.errors,
	}).Logf(c.level, "Progress %d/%d (%.1f%%)", c.processed, c.total, float64(c.processed)/float64(c.total)*100)
}

func (c *counter) snapshot() (processed, hashed, cached, errs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed, c.hashed, c.cached, c.errors
}
