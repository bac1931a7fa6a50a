package imagesource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Download cache layout:
//
//	<root>/previews/<xid>/scan_<i>.<ext>
//	<root>/zoomify/<xid>/scan_<i>/TileGroup<g>/0-0-0.jpg

const firstTileName = "0-0-0.jpg"

// findLocalPreview returns the first (by name) preview file for a scan.
func findLocalPreview(root, xid string, scanIndex int) string {
	dir := filepath.Join(root, "previews", xid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	prefix := fmt.Sprintf("scan_%d.", scanIndex)
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// findLocalTile returns the cached level-0 tile, preferring TileGroup0.
func findLocalTile(root, xid string, scanIndex int) string {
	dir := filepath.Join(root, "zoomify", xid, fmt.Sprintf("scan_%d", scanIndex))
	expected := filepath.Join(dir, "TileGroup0", firstTileName)
	if isFile(expected) {
		return expected
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "TileGroup") {
			continue
		}
		if candidate := filepath.Join(dir, e.Name(), firstTileName); isFile(candidate) {
			return candidate
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
