// Package catalog loads the photo records the similarity run iterates over.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Photo is one catalog record.
type Photo struct {
	ID           string
	GroupID      string
	ScanPreviews []string
}

// Scans returns the preview URL per scan index. A photo without previews has
// exactly one scan with an empty URL.
func (p Photo) Scans() []string {
	if len(p.ScanPreviews) == 0 {
		return []string{""}
	}
	return p.ScanPreviews
}

// CountScans returns the number of (photo, scan) units in photos.
func CountScans(photos []Photo) int {
	total := 0
	for _, p := range photos {
		total += len(p.Scans())
	}
	return total
}

// Load reads a catalog file. See Parse.
func Load(path string, limit int) ([]Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	photos, err := Parse(data, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return photos, nil
}

type featureCollection struct {
	Features []json.RawMessage `json:"features"`
}

type feature struct {
	Properties map[string]any `json:"properties"`
}

// Parse decodes either a GeoJSON FeatureCollection whose feature properties
// carry id, group_id and scan_previews, or a plain JSON array of such objects
// (bare or wrapped as features). Records without id or group_id are skipped.
// A positive limit stops after that many accepted records.
func Parse(data []byte, limit int) ([]Photo, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty catalog")
	}

	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to parse catalog array: %w", err)
		}
	} else {
		var fc featureCollection
		if err := json.Unmarshal(trimmed, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		items = fc.Features
	}

	photos := make([]Photo, 0, len(items))
	for _, raw := range items {
		props, err := decodeProperties(raw)
		if err != nil {
			return nil, err
		}
		if props == nil {
			continue
		}

		photo := Photo{
			ID:           NormalizeID(stringify(props["id"])),
			GroupID:      NormalizeID(stringify(props["group_id"])),
			ScanPreviews: previews(props["scan_previews"]),
		}
		if photo.ID == "" || photo.GroupID == "" {
			continue
		}
		photos = append(photos, photo)
		if limit > 0 && len(photos) >= limit {
			break
		}
	}
	return photos, nil
}

// NormalizeID trims an identifier and puts it in Unicode NFC form so the same
// id from the catalog and from the hash cache compares equal.
func NormalizeID(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func decodeProperties(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog record: %w", err)
	}
	if obj == nil {
		return nil, nil
	}
	if props, ok := obj["properties"]; ok {
		m, _ := props.(map[string]any)
		return m, nil
	}
	return obj, nil
}

func previews(v any) []string {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = strings.TrimSpace(stringify(item))
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
