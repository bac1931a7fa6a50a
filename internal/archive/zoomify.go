package archive

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	imgPathPattern = regexp.MustCompile(`zoomifyImgPath\s*=\s*"([^"]+)"`)
	actionPattern  = regexp.MustCompile(`Zoomify\.action[^"']+`)
)

// tilesPerGroup is the number of tiles stored in one TileGroup directory.
const tilesPerGroup = 256

// ErrZoomifyNotFound is returned when no zoomify image path can be resolved.
var ErrZoomifyNotFound = errors.New("zoomify image path not found")

// ExtractImgPath returns the zoomifyImgPath embedded in a viewer page.
func ExtractImgPath(page string) string {
	m := imgPathPattern.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractZoomifyURL finds a Zoomify.action link in a page and resolves it
// against the page URL.
func ExtractZoomifyURL(page, pageURL string) (string, bool) {
	m := actionPattern.FindString(page)
	if m == "" {
		return "", false
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(html.UnescapeString(m))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// ImageProperties describes a zoomify pyramid.
type ImageProperties struct {
	Width    int
	Height   int
	TileSize int
}

type imagePropertiesXML struct {
	Width    *int `xml:"WIDTH,attr"`
	Height   *int `xml:"HEIGHT,attr"`
	TileSize *int `xml:"TILESIZE,attr"`
}

// ParseImageProperties decodes ImageProperties.xml.
func ParseImageProperties(data []byte) (ImageProperties, error) {
	var raw imagePropertiesXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return ImageProperties{}, fmt.Errorf("invalid ImageProperties.xml: %w", err)
	}
	switch {
	case raw.Width == nil:
		return ImageProperties{}, errors.New("missing WIDTH in ImageProperties.xml")
	case raw.Height == nil:
		return ImageProperties{}, errors.New("missing HEIGHT in ImageProperties.xml")
	case raw.TileSize == nil:
		return ImageProperties{}, errors.New("missing TILESIZE in ImageProperties.xml")
	case *raw.TileSize <= 0:
		return ImageProperties{}, fmt.Errorf("invalid TILESIZE %d", *raw.TileSize)
	}
	return ImageProperties{Width: *raw.Width, Height: *raw.Height, TileSize: *raw.TileSize}, nil
}

// Tier is the pixel size of one pyramid level.
type Tier struct {
	Width  int
	Height int
}

// BuildTiers halves the image (rounding up) until it fits in one tile and
// returns the levels smallest first, so level 0 is a single tile.
func BuildTiers(width, height, tileSize int) []Tier {
	var tiers []Tier
	w, h := width, height
	for w > tileSize || h > tileSize {
		tiers = append(tiers, Tier{Width: w, Height: h})
		w = (w + 1) / 2
		h = (h + 1) / 2
	}
	tiers = append(tiers, Tier{Width: w, Height: h})

	for i, j := 0, len(tiers)-1; i < j; i, j = i+1, j-1 {
		tiers[i], tiers[j] = tiers[j], tiers[i]
	}
	return tiers
}

// TilesFor returns the tile grid dimensions of a tier.
func TilesFor(tier Tier, tileSize int) (int, int) {
	return (tier.Width + tileSize - 1) / tileSize, (tier.Height + tileSize - 1) / tileSize
}

// TileGroupIndex returns the TileGroup directory holding tile (z, x, y):
// the count of tiles in all lower tiers plus the tile's row-major offset,
// divided by 256.
func TileGroupIndex(tiers []Tier, tileSize, z, x, y int) int {
	offset := 0
	for _, tier := range tiers[:z] {
		tx, ty := TilesFor(tier, tileSize)
		offset += tx * ty
	}
	tx, _ := TilesFor(tiers[z], tileSize)
	return (offset + y*tx + x) / tilesPerGroup
}

// TileURL builds the URL of tile (z, x, y) under a zoomify image path.
func TileURL(imgPath string, tiers []Tier, tileSize, z, x, y int) string {
	group := TileGroupIndex(tiers, tileSize, z, x, y)
	return fmt.Sprintf("%s/TileGroup%d/%d-%d-%d.jpg", strings.TrimRight(imgPath, "/"), group, z, x, y)
}

// cleanPermalink strips escaping backslashes and any fragment.
func cleanPermalink(raw string) string {
	raw = strings.ReplaceAll(raw, `\`, "")
	before, _, _ := strings.Cut(raw, "#")
	return before
}

// ResolveImgPath follows a permalink to the zoomify image path.
//
// The page may embed the path directly or link a Zoomify.action viewer. If
// neither works, the bare record permalink (without scan) is tried.
func (c *Client) ResolveImgPath(ctx context.Context, permalink string) (string, error) {
	pageURL := cleanPermalink(permalink)

	// A failed first fetch is not fatal: the bare permalink may still work.
	if page, err := c.Get(ctx, pageURL); err == nil {
		if path, ok := c.followViewer(ctx, string(page), pageURL); ok {
			return path, nil
		}
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid permalink: %w", err)
	}
	xid := parsed.Query().Get("xid")
	if xid == "" {
		return "", ErrZoomifyNotFound
	}

	recordURL := c.bareRecordURL(xid)
	page, err := c.Get(ctx, recordURL)
	if err != nil {
		return "", fmt.Errorf("fetching record page: %w", err)
	}
	zoomifyURL, ok := ExtractZoomifyURL(string(page), recordURL)
	if !ok {
		return "", ErrZoomifyNotFound
	}
	viewer, err := c.Get(ctx, zoomifyURL)
	if err != nil {
		return "", fmt.Errorf("fetching zoomify viewer: %w", err)
	}
	if path := ExtractImgPath(string(viewer)); path != "" {
		return absolutize(path, zoomifyURL), nil
	}
	return "", ErrZoomifyNotFound
}

// followViewer returns the image path from page itself or from the
// Zoomify.action page it links to.
func (c *Client) followViewer(ctx context.Context, page, pageURL string) (string, bool) {
	if path := ExtractImgPath(page); path != "" {
		return absolutize(path, pageURL), true
	}
	zoomifyURL, ok := ExtractZoomifyURL(page, pageURL)
	if !ok {
		return "", false
	}
	viewer, err := c.Get(ctx, zoomifyURL)
	if err != nil {
		return "", false
	}
	if path := ExtractImgPath(string(viewer)); path != "" {
		return absolutize(path, zoomifyURL), true
	}
	return "", false
}

func absolutize(path, pageURL string) string {
	ref, err := url.Parse(path)
	if err != nil || ref.IsAbs() {
		return path
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return path
	}
	return base.ResolveReference(ref).String()
}

// FetchImageProperties downloads and parses <imgPath>/ImageProperties.xml.
func (c *Client) FetchImageProperties(ctx context.Context, imgPath string) (ImageProperties, error) {
	data, err := c.Get(ctx, strings.TrimRight(imgPath, "/")+"/ImageProperties.xml")
	if err != nil {
		return ImageProperties{}, fmt.Errorf("fetching image properties: %w", err)
	}
	return ParseImageProperties(data)
}

// FetchFirstTile downloads tile (0, 0, 0) of a scan's pyramid.
func (c *Client) FetchFirstTile(ctx context.Context, xid string, scanIndex int) ([]byte, error) {
	imgPath, err := c.ResolveImgPath(ctx, c.PermalinkURL(xid, scanIndex))
	if err != nil {
		return nil, err
	}
	props, err := c.FetchImageProperties(ctx, imgPath)
	if err != nil {
		return nil, err
	}
	tiers := BuildTiers(props.Width, props.Height, props.TileSize)
	data, err := c.Get(ctx, TileURL(imgPath, tiers, props.TileSize, 0, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("fetching tile: %w", err)
	}
	return data, nil
}
