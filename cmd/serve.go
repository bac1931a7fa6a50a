package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/archive-similarity/internal/config"
	"github.com/kozaktomas/archive-similarity/internal/constants"
	"github.com/kozaktomas/archive-similarity/internal/hashstore"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
	"github.com/kozaktomas/archive-similarity/internal/web"
	"github.com/kozaktomas/archive-similarity/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a finished run over HTTP",
	Long: `Load the hash cache and the candidate and cluster documents of a finished
build and expose them as a read-only JSON API:

  GET /api/v1/health
  GET /api/v1/stats
  GET /api/v1/pairs?group=<group id>
  GET /api/v1/groups/{groupID}/clusters
  GET /api/v1/search?hash=<hex>&distance=<n>`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	d := config.Defaults()
	serveCmd.Flags().Int("port", d.Web.Port, "Port to listen on")
	serveCmd.Flags().String("host", d.Web.Host, "Host to bind to")
	serveCmd.Flags().String("hash-cache", d.Similarity.HashCache, "Cache for computed hashes")
	serveCmd.Flags().String("output", d.Similarity.Output, "Similarity candidates JSON")
	serveCmd.Flags().String("clusters-output", d.Similarity.ClustersOutput, "Version clusters JSON")
	serveCmd.Flags().Int("hash-size", d.Similarity.HashSize, "Hash grid size (8 => 64-bit hash)")
}

// loadDataset reads the artifacts of a finished build. Missing documents
// are tolerated so the API can serve search over a cache alone.
func loadDataset(cfg *config.Config, log *logrus.Logger) (*handlers.Dataset, error) {
	records, stats, err := hashstore.ReadCache(cfg.Similarity.HashCache, cfg.Similarity.HashSize)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"entries":    stats.Entries,
		"mismatched": stats.Mismatched,
		"corrupt":    stats.Corrupt,
	}).Info("Loaded hash cache")

	candidates, err := similarity.ReadCandidates(cfg.Similarity.Output)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warnf("No candidates at %s, serving without pairs", cfg.Similarity.Output)
		candidates, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	clusters, err := similarity.ReadClusters(cfg.Similarity.ClustersOutput)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warnf("No clusters at %s, serving without clusters", cfg.Similarity.ClustersOutput)
		clusters, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	if candidates != nil && candidates.HashSize != 0 && candidates.HashSize != cfg.Similarity.HashSize {
		log.Warnf("Candidates were built with hash size %d, serving with %d",
			candidates.HashSize, cfg.Similarity.HashSize)
	}
	return handlers.NewDataset(cfg.Similarity.HashSize, records, candidates, clusters), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	overrideInt(cmd, "port", &cfg.Web.Port)
	overrideString(cmd, "host", &cfg.Web.Host)
	overrideString(cmd, "hash-cache", &cfg.Similarity.HashCache)
	overrideString(cmd, "output", &cfg.Similarity.Output)
	overrideString(cmd, "clusters-output", &cfg.Similarity.ClustersOutput)
	overrideInt(cmd, "hash-size", &cfg.Similarity.HashSize)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	data, err := loadDataset(cfg, log)
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, data, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownGracePeriod)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Error during shutdown")
		}
	}()

	fmt.Printf("Serving similarity API on http://%s:%d/api/v1\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
