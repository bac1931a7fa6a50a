package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "archive-similarity",
	Short: "Find near-duplicate scans in a digitized photo archive",
	Long: `Archive Similarity fingerprints every scan of a photo catalog with a
difference hash, then reports which catalog groups likely show the same
photograph and how each group splits into versions.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// newLogger builds the stderr logger for a command. The --log-level flag
// wins over the configured level.
func newLogger(configured string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	name := configured
	if logLevel != "" {
		name = logLevel
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", name)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
