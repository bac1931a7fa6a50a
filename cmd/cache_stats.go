package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/archive-similarity/internal/config"
	"github.com/kozaktomas/archive-similarity/internal/hashstore"
)

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the hash cache holds",
	Long: `Load the hash cache the way a build would and report how many entries
are usable, how many were skipped because they were computed with another
algorithm or hash size, and how many lines could not be parsed.

Examples:
  archive-similarity cache stats
  archive-similarity cache stats --hash-cache output/similarity/hashes.jsonl --json`,
	RunE: runCacheStats,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)

	d := config.Defaults()
	cacheStatsCmd.Flags().String("hash-cache", d.Similarity.HashCache, "Cache for computed hashes")
	cacheStatsCmd.Flags().Int("hash-size", d.Similarity.HashSize, "Hash grid size (8 => 64-bit hash)")
	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

// CacheStatsResult represents the result of a cache stats command
type CacheStatsResult struct {
	hashstore.CacheStats
	Path      string `json:"path"`
	HashSize  int    `json:"hash_size"`
	ErrorLog  string `json:"error_log"`
	ErrorRows int    `json:"error_rows"`
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	overrideString(cmd, "hash-cache", &cfg.Similarity.HashCache)
	overrideInt(cmd, "hash-size", &cfg.Similarity.HashSize)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	_, stats, err := hashstore.ReadCache(cfg.Similarity.HashCache, cfg.Similarity.HashSize)
	if err != nil {
		return err
	}

	errorLog := filepath.Join(filepath.Dir(cfg.Similarity.HashCache), hashstore.ErrorLogName)
	errorRows, err := countNonEmptyLines(errorLog)
	if err != nil {
		return err
	}

	result := CacheStatsResult{
		Path:       cfg.Similarity.HashCache,
		HashSize:   cfg.Similarity.HashSize,
		CacheStats: stats,
		ErrorLog:   errorLog,
		ErrorRows:  errorRows,
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}

	fmt.Printf("Hash cache: %s (hash size %d)\n", result.Path, result.HashSize)
	fmt.Printf("  Lines:      %d\n", result.Lines)
	fmt.Printf("  Entries:    %d\n", result.Entries)
	fmt.Printf("  Photos:     %d\n", result.XIDs)
	fmt.Printf("  Mismatched: %d\n", result.Mismatched)
	fmt.Printf("  Corrupt:    %d\n", result.Corrupt)
	fmt.Printf("Error log:  %s (%d rows)\n", result.ErrorLog, result.ErrorRows)
	return nil
}

// countNonEmptyLines counts non-blank lines; a missing file has none.
func countNonEmptyLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return n, nil
}
