// Package imagesource resolves a catalog scan to a decoded image, preferring
// the local download cache over the network and preview images over
// deep-zoom tiles.
package imagesource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/kozaktomas/archive-similarity/internal/archive"
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

var (
	// ErrMissingScanSource means a scan other than the first has no usable preview.
	ErrMissingScanSource = errors.New("no usable source for scan")
	// ErrFetchFailure wraps network and tile-resolution errors.
	ErrFetchFailure = errors.New("fetch failed")
)

// Archive is the network side of the source: plain downloads and the
// deep-zoom first-tile chain. *archive.Client satisfies it.
type Archive interface {
	Get(ctx context.Context, url string) ([]byte, error)
	FetchFirstTile(ctx context.Context, xid string, scanIndex int) ([]byte, error)
}

// Scan identifies one scan of a catalog photo.
type Scan struct {
	XID        string
	GroupID    string
	ScanIndex  int
	PreviewURL string
}

// Source loads scan images. It never retries; that is the Archive's job.
type Source struct {
	archive      Archive
	downloadRoot string
	useLocal     bool
}

// New creates a Source. archive may be nil to work from the local cache only.
func New(archive Archive, downloadRoot string, useLocal bool) *Source {
	return &Source{
		archive:      archive,
		downloadRoot: downloadRoot,
		useLocal:     useLocal && downloadRoot != "",
	}
}

// Load resolves a scan, trying in order: the local preview file, the
// preview URL, the local first tile, and the network first tile. Only scan
// 0 may fall through to tiles.
func (s *Source) Load(ctx context.Context, scan Scan) (image.Image, error) {
	localPreview := ""
	if s.useLocal {
		localPreview = findLocalPreview(s.downloadRoot, scan.XID, scan.ScanIndex)
	}

	var previewErr error
	if scan.PreviewURL != "" || localPreview != "" {
		img, err := s.loadPreview(ctx, scan, localPreview)
		if err == nil {
			return img, nil
		}
		if scan.ScanIndex != 0 {
			if archive.IsNotFoundError(err) {
				return nil, fmt.Errorf("%w: %s scan %d preview is gone: %w", ErrMissingScanSource, scan.XID, scan.ScanIndex, err)
			}
			return nil, err
		}
		previewErr = err
	}

	if scan.ScanIndex != 0 {
		return nil, fmt.Errorf("%w: %s scan %d has no preview", ErrMissingScanSource, scan.XID, scan.ScanIndex)
	}

	img, err := s.loadTile(ctx, scan)
	if err != nil {
		if previewErr != nil {
			return nil, fmt.Errorf("%w (preview: %v)", err, previewErr)
		}
		return nil, err
	}
	return img, nil
}

func (s *Source) loadPreview(ctx context.Context, scan Scan, localPath string) (image.Image, error) {
	if localPath != "" {
		return decodeFile(localPath)
	}
	if s.archive == nil {
		return nil, fmt.Errorf("%w: network disabled for %s", ErrFetchFailure, scan.PreviewURL)
	}
	data, err := s.archive.Get(ctx, scan.PreviewURL)
	if err != nil {
		return nil, fmt.Errorf("%w: preview %s: %w", ErrFetchFailure, scan.PreviewURL, err)
	}
	return fingerprint.Decode(data)
}

func (s *Source) loadTile(ctx context.Context, scan Scan) (image.Image, error) {
	if s.useLocal {
		if path := findLocalTile(s.downloadRoot, scan.XID, scan.ScanIndex); path != "" {
			return decodeFile(path)
		}
	}
	if s.archive == nil {
		return nil, fmt.Errorf("%w: network disabled for %s tiles", ErrFetchFailure, scan.XID)
	}
	data, err := s.archive.FetchFirstTile(ctx, scan.XID, scan.ScanIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: tile for %s: %w", ErrFetchFailure, scan.XID, err)
	}
	return fingerprint.Decode(data)
}

func decodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := fingerprint.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
