package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Archive    ArchiveConfig    `yaml:"archive"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Download   DownloadConfig   `yaml:"download"`
	Web        WebConfig        `yaml:"web"`
	LogLevel   string           `yaml:"log_level"`
}

type ArchiveConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retries        int    `yaml:"retries"`
}

// Timeout returns the per-request HTTP timeout.
func (c *ArchiveConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SimilarityConfig struct {
	Input          string `yaml:"input"`
	Output         string `yaml:"output"`
	ClustersOutput string `yaml:"clusters_output"`
	HashCache      string `yaml:"hash_cache"`
	Distance       int    `yaml:"distance"`
	HashSize       int    `yaml:"hash_size"` // 8 => 64-bit hash
	Concurrency    int    `yaml:"concurrency"`
}

type DownloadConfig struct {
	Root string `yaml:"root"` // previews/ and zoomify/ live under it
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // localhost is always allowed
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegInt is envInt for settings where zero is meaningful.
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the defaults overridden by environment variables.
func Load() *Config {
	cfg := *Defaults()

	cfg.Archive.BaseURL = envString("ARCHIVE_BASE_URL", cfg.Archive.BaseURL)
	cfg.Archive.TimeoutSeconds = envInt("HTTP_TIMEOUT_SECONDS", cfg.Archive.TimeoutSeconds)
	cfg.Archive.Retries = envNonNegInt("HTTP_RETRIES", cfg.Archive.Retries)

	cfg.Similarity.Input = envString("SIMILARITY_INPUT", cfg.Similarity.Input)
	cfg.Similarity.Output = envString("SIMILARITY_OUTPUT", cfg.Similarity.Output)
	cfg.Similarity.ClustersOutput = envString("SIMILARITY_CLUSTERS_OUTPUT", cfg.Similarity.ClustersOutput)
	cfg.Similarity.HashCache = envString("SIMILARITY_HASH_CACHE", cfg.Similarity.HashCache)
	cfg.Similarity.Distance = envNonNegInt("SIMILARITY_DISTANCE", cfg.Similarity.Distance)
	cfg.Similarity.HashSize = envInt("SIMILARITY_HASH_SIZE", cfg.Similarity.HashSize)

	cfg.Download.Root = envString("DOWNLOAD_ROOT", cfg.Download.Root)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	if env := os.Getenv("WEB_ALLOWED_ORIGINS"); env != "" {
		cfg.Web.AllowedOrigins = strings.Split(env, ",")
	}

	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	return &cfg
}

// Validate rejects settings no run can start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Similarity.HashSize < 2 {
		errs = append(errs, fmt.Errorf("%w: got %d", fingerprint.ErrInvalidHashSize, c.Similarity.HashSize))
	}
	if c.Similarity.Distance < 0 {
		errs = append(errs, fmt.Errorf("distance must not be negative, got %d", c.Similarity.Distance))
	}
	if c.Similarity.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Similarity.Concurrency))
	}
	if c.Archive.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Archive.Retries))
	}
	if u, err := url.Parse(c.Archive.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("archive base URL must be http(s), got %q", c.Archive.BaseURL))
	}
	return errors.Join(errs...)
}
