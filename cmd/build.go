package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/archive-similarity/internal/archive"
	"github.com/kozaktomas/archive-similarity/internal/catalog"
	"github.com/kozaktomas/archive-similarity/internal/config"
	"github.com/kozaktomas/archive-similarity/internal/constants"
	"github.com/kozaktomas/archive-similarity/internal/hashstore"
	"github.com/kozaktomas/archive-similarity/internal/imagesource"
	"github.com/kozaktomas/archive-similarity/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Hash the catalog and build similarity candidates and version clusters",
	Long: `Hash every scan of every catalog photo (reusing the hash cache), then write
cross-group candidate pairs and per-group version clusters.

The hash cache is append-only, so an interrupted run resumes where it stopped.
Failed scans are written to errors.jsonl next to the cache and do not stop
the run.

Examples:
  # Full run with defaults
  archive-similarity build

  # Try the first 50 photos, stricter threshold
  archive-similarity build --limit 50 --distance 6

  # Recompute every hash, four scans at a time
  archive-similarity build --force --concurrency 4

  # Offline: only use previously downloaded previews/tiles
  archive-similarity build --download-root downloads/archive --json`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	d := config.Defaults()
	buildCmd.Flags().String("input", d.Similarity.Input, "Catalog with photo metadata (GeoJSON or JSON array)")
	buildCmd.Flags().String("output", d.Similarity.Output, "Output JSON with similarity candidates")
	buildCmd.Flags().String("clusters-output", d.Similarity.ClustersOutput, "Output JSON with per-series version clusters")
	buildCmd.Flags().String("hash-cache", d.Similarity.HashCache, "Cache for computed hashes")
	buildCmd.Flags().Int("distance", d.Similarity.Distance, "Max Hamming distance for candidate pairs")
	buildCmd.Flags().Int("hash-size", d.Similarity.HashSize, "Hash grid size (8 => 64-bit hash)")
	buildCmd.Flags().Int("limit", 0, "Limit number of photos (0 = all)")
	buildCmd.Flags().Float64("sleep", 0, "Delay after each computed hash (seconds)")
	buildCmd.Flags().Bool("force", false, "Recompute hashes even if cache exists")
	buildCmd.Flags().String("archive-base-url", d.Archive.BaseURL, "Base URL for archive permalinks")
	buildCmd.Flags().String("download-root", d.Download.Root, "Root directory for downloaded previews/tiles")
	buildCmd.Flags().Bool("no-download-cache", false, "Disable local download cache usage")
	buildCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of scans hashed in parallel")
	buildCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// BuildResult represents the result of a similarity build
type BuildResult struct {
	Success bool `json:"success"`
	pipeline.Summary
	RunID           string `json:"run_id"`
	CacheMismatched int    `json:"cache_mismatched"`
	CacheCorrupt    int    `json:"cache_corrupt"`
	CandidatesPath  string `json:"candidates_path"`
	ClustersPath    string `json:"clusters_path"`
	DurationMs      int64  `json:"duration_ms"`
	DurationHuman   string `json:"duration_human,omitempty"`
}

// applyBuildFlags layers explicitly set flags over the loaded config.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideString(cmd, "input", &cfg.Similarity.Input)
	overrideString(cmd, "output", &cfg.Similarity.Output)
	overrideString(cmd, "clusters-output", &cfg.Similarity.ClustersOutput)
	overrideString(cmd, "hash-cache", &cfg.Similarity.HashCache)
	overrideInt(cmd, "distance", &cfg.Similarity.Distance)
	overrideInt(cmd, "hash-size", &cfg.Similarity.HashSize)
	overrideInt(cmd, "concurrency", &cfg.Similarity.Concurrency)
	overrideString(cmd, "archive-base-url", &cfg.Archive.BaseURL)
	overrideString(cmd, "download-root", &cfg.Download.Root)
}

func runBuild(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	cfg := config.Load()
	applyBuildFlags(cmd, cfg)
	cfg.Similarity.Concurrency = min(cfg.Similarity.Concurrency, constants.MaxConcurrency)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")
	sleep := mustGetFloat64(cmd, "sleep")
	log := newLogger(cfg.LogLevel)

	photos, err := catalog.Load(cfg.Similarity.Input, limit)
	if err != nil {
		return err
	}

	client, err := archive.NewClient(archive.Options{
		BaseURL:   cfg.Archive.BaseURL,
		UserAgent: cfg.Archive.UserAgent,
		Timeout:   cfg.Archive.Timeout(),
		Retries:   cfg.Archive.Retries,
	})
	if err != nil {
		return fmt.Errorf("failed to create archive client: %w", err)
	}
	log.WithField("base_url", client.BaseURL()).Debug("Archive client ready")
	source := imagesource.New(client, cfg.Download.Root, !mustGetBool(cmd, "no-download-cache"))

	store, err := hashstore.Open(hashstore.Options{
		CachePath: cfg.Similarity.HashCache,
		HashSize:  cfg.Similarity.HashSize,
		Force:     mustGetBool(cmd, "force"),
		Loader:    source,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Error("Failed to close hash cache")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	totalScans := catalog.CountScans(photos)
	var progress pipeline.Progress
	if !jsonOutput && totalScans > 0 {
		fmt.Printf("Processing %d scans across %d photos (cache: %d entries)\n\n",
			totalScans, len(photos), store.Len())
		progress = progressbar.NewOptions(totalScans,
			progressbar.OptionSetDescription("Hashing scans"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("scans"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	res, err := pipeline.Run(ctx, photos, store, pipeline.Options{
		Distance:           cfg.Similarity.Distance,
		HashSize:           cfg.Similarity.HashSize,
		Concurrency:        cfg.Similarity.Concurrency,
		Delay:              time.Duration(sleep * float64(time.Second)),
		OutputPath:         cfg.Similarity.Output,
		ClustersOutputPath: cfg.Similarity.ClustersOutput,
		Progress:           progress,
		Logger:             log,
	})
	if progress != nil {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("similarity build failed: %w", err)
	}

	duration := time.Since(startTime)
	result := BuildResult{
		Success:         true,
		Summary:         res.Summary,
		RunID:           store.RunID(),
		CacheMismatched: store.LoadStats().Mismatched,
		CacheCorrupt:    store.LoadStats().Corrupt,
		CandidatesPath:  cfg.Similarity.Output,
		ClustersPath:    cfg.Similarity.ClustersOutput,
		DurationMs:      duration.Milliseconds(),
		DurationHuman:   formatDuration(duration),
	}

	if jsonOutput {
		// Remove human-readable duration for JSON output
		result.DurationHuman = ""
		return outputJSON(result)
	}

	fmt.Println("\nBuild complete!")
	fmt.Printf("  Photos:     %d (%d scans)\n", result.Photos, result.Scans)
	fmt.Printf("  Hashed:     %d\n", result.Hashed)
	fmt.Printf("  Cached:     %d\n", result.Cached)
	if skipped := result.CacheMismatched + result.CacheCorrupt; skipped > 0 {
		fmt.Printf("  Skipped:    %d cache lines (%d other algo/size, %d corrupt)\n",
			skipped, result.CacheMismatched, result.CacheCorrupt)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:     %d (see %s)\n", result.Errors, hashstore.ErrorLogName)
	}
	fmt.Printf("  Candidates: %d -> %s\n", result.Candidates, result.CandidatesPath)
	fmt.Printf("  Clusters:   %d -> %s\n", result.Clusters, result.ClustersPath)
	fmt.Printf("  Duration:   %s\n", result.DurationHuman)

	return nil
}
