package imagesource

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/archive-similarity/internal/archive"
)

type fakeArchive struct {
	files     map[string][]byte
	status    map[string]int
	tiles     map[string][]byte
	gets      []string
	tileCalls int
}

func (f *fakeArchive) Get(_ context.Context, url string) ([]byte, error) {
	f.gets = append(f.gets, url)
	if f.status[url] != 0 {
		return nil, &archive.StatusError{URL: url, StatusCode: f.status[url]}
	}
	data, ok := f.files[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return data, nil
}

func (f *fakeArchive) FetchFirstTile(_ context.Context, xid string, _ int) ([]byte, error) {
	f.tileCalls++
	data, ok := f.tiles[xid]
	if !ok {
		return nil, errors.New("no zoomify viewer")
	}
	return data, nil
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPrefersLocalPreview(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "previews", "X1", "scan_0.png"), pngBytes(t, 3, 2, color.White))

	fa := &fakeArchive{files: map[string][]byte{"https://x/p.jpg": pngBytes(t, 5, 5, color.Black)}}
	src := New(fa, root, true)

	img, err := src.Load(context.Background(), Scan{XID: "X1", PreviewURL: "https://x/p.jpg"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("expected local 3px preview, got width %d", img.Bounds().Dx())
	}
	if len(fa.gets) != 0 {
		t.Errorf("expected no network fetches, got %v", fa.gets)
	}
}

func TestLoadIgnoresLocalWhenDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "previews", "X1", "scan_0.png"), pngBytes(t, 3, 2, color.White))

	fa := &fakeArchive{files: map[string][]byte{"https://x/p.jpg": pngBytes(t, 5, 5, color.Black)}}
	src := New(fa, root, false)

	img, err := src.Load(context.Background(), Scan{XID: "X1", PreviewURL: "https://x/p.jpg"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.Bounds().Dx() != 5 {
		t.Errorf("expected network preview, got width %d", img.Bounds().Dx())
	}
}

func TestLoadScanZeroFallsBackToTile(t *testing.T) {
	fa := &fakeArchive{
		files: map[string][]byte{"https://x/broken.jpg": []byte("not an image")},
		tiles: map[string][]byte{"X1": pngBytes(t, 7, 7, color.White)},
	}
	src := New(fa, "", true)

	img, err := src.Load(context.Background(), Scan{XID: "X1", PreviewURL: "https://x/broken.jpg"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.Bounds().Dx() != 7 {
		t.Errorf("expected tile image, got width %d", img.Bounds().Dx())
	}
	if fa.tileCalls != 1 {
		t.Errorf("tileCalls = %d, want 1", fa.tileCalls)
	}
}

func TestLoadScanZeroWithoutPreviewUsesTile(t *testing.T) {
	fa := &fakeArchive{tiles: map[string][]byte{"X1": pngBytes(t, 4, 4, color.White)}}
	src := New(fa, "", true)

	if _, err := src.Load(context.Background(), Scan{XID: "X1"}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadLaterScanWithoutPreview(t *testing.T) {
	fa := &fakeArchive{tiles: map[string][]byte{"X1": pngBytes(t, 4, 4, color.White)}}
	src := New(fa, "", true)

	_, err := src.Load(context.Background(), Scan{XID: "X1", ScanIndex: 1})
	if !errors.Is(err, ErrMissingScanSource) {
		t.Fatalf("expected ErrMissingScanSource, got %v", err)
	}
	if fa.tileCalls != 0 {
		t.Errorf("later scans must not use tiles, tileCalls = %d", fa.tileCalls)
	}
}

func TestLoadLaterScanPreviewFailure(t *testing.T) {
	fa := &fakeArchive{tiles: map[string][]byte{"X1": pngBytes(t, 4, 4, color.White)}}
	src := New(fa, "", true)

	_, err := src.Load(context.Background(), Scan{XID: "X1", ScanIndex: 2, PreviewURL: "https://x/missing.jpg"})
	if !errors.Is(err, ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
	if fa.tileCalls != 0 {
		t.Errorf("later scans must not use tiles, tileCalls = %d", fa.tileCalls)
	}
}

func TestLoadLaterScanPreviewNotFound(t *testing.T) {
	fa := &fakeArchive{status: map[string]int{"https://x/gone.jpg": 404}}
	src := New(fa, "", true)

	_, err := src.Load(context.Background(), Scan{XID: "X1", ScanIndex: 1, PreviewURL: "https://x/gone.jpg"})
	if !errors.Is(err, ErrMissingScanSource) {
		t.Fatalf("expected ErrMissingScanSource, got %v", err)
	}

	fa.status["https://x/busy.jpg"] = 503
	_, err = src.Load(context.Background(), Scan{XID: "X1", ScanIndex: 1, PreviewURL: "https://x/busy.jpg"})
	if errors.Is(err, ErrMissingScanSource) || !errors.Is(err, ErrFetchFailure) {
		t.Errorf("server errors stay fetch failures, got %v", err)
	}
}

func TestLoadTileFailureReportsBoth(t *testing.T) {
	fa := &fakeArchive{}
	src := New(fa, "", true)

	_, err := src.Load(context.Background(), Scan{XID: "X1", PreviewURL: "https://x/missing.jpg"})
	if !errors.Is(err, ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
}

func TestLoadPrefersLocalTile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zoomify", "X1", "scan_0", "TileGroup0", "0-0-0.jpg"), pngBytes(t, 6, 6, color.White))

	fa := &fakeArchive{tiles: map[string][]byte{"X1": pngBytes(t, 9, 9, color.White)}}
	src := New(fa, root, true)

	img, err := src.Load(context.Background(), Scan{XID: "X1"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.Bounds().Dx() != 6 {
		t.Errorf("expected local tile, got width %d", img.Bounds().Dx())
	}
	if fa.tileCalls != 0 {
		t.Errorf("tileCalls = %d, want 0", fa.tileCalls)
	}
}

func TestLoadOfflineWithoutArchive(t *testing.T) {
	src := New(nil, t.TempDir(), true)
	_, err := src.Load(context.Background(), Scan{XID: "X1", PreviewURL: "https://x/p.jpg"})
	if !errors.Is(err, ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
}

func TestFindLocalTile(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "zoomify", "X1", "scan_0")
	writeFile(t, filepath.Join(base, "TileGroup3", "0-0-0.jpg"), []byte("b"))
	writeFile(t, filepath.Join(base, "TileGroup1", "0-0-0.jpg"), []byte("a"))
	writeFile(t, filepath.Join(base, "TileGroup2", "1-0-0.jpg"), []byte("c"))

	got := findLocalTile(root, "X1", 0)
	want := filepath.Join(base, "TileGroup1", "0-0-0.jpg")
	if got != want {
		t.Errorf("findLocalTile() = %q, want %q", got, want)
	}

	if got := findLocalTile(root, "X1", 1); got != "" {
		t.Errorf("findLocalTile() for missing scan = %q, want empty", got)
	}
}

func TestFindLocalPreview(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "previews", "X1", "scan_10.jpg"), []byte("x"))
	writeFile(t, filepath.Join(root, "previews", "X1", "scan_1.png"), []byte("x"))

	got := findLocalPreview(root, "X1", 1)
	want := filepath.Join(root, "previews", "X1", "scan_1.png")
	if got != want {
		t.Errorf("findLocalPreview() = %q, want %q", got, want)
	}
	if got := findLocalPreview(root, "X2", 0); got != "" {
		t.Errorf("expected empty path, got %q", got)
	}
}
