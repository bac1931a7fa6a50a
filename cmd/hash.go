package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/archive-similarity/internal/config"
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the difference hash of local image files",
	Long: `Print the difference hash of local image files, in the same hex form the
hash cache uses.

Examples:
  archive-similarity hash scan.jpg other.png
  archive-similarity hash --hash-size 16 --json scan.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().Int("hash-size", config.Defaults().Similarity.HashSize, "Hash grid size (8 => 64-bit hash)")
	hashCmd.Flags().Bool("json", false, "Output as JSON")
}

// FileHash is the hash of one file, or the reason it could not be hashed.
type FileHash struct {
	Path  string `json:"path"`
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

func runHash(cmd *cobra.Command, args []string) error {
	hashSize := mustGetInt(cmd, "hash-size")
	jsonOutput := mustGetBool(cmd, "json")
	if hashSize < 2 {
		return fmt.Errorf("%w: got %d", fingerprint.ErrInvalidHashSize, hashSize)
	}

	results := make([]FileHash, 0, len(args))
	failed := 0
	for _, path := range args {
		result := FileHash{Path: path}
		h, err := hashFile(path, hashSize)
		if err != nil {
			result.Error = err.Error()
			failed++
		} else {
			result.Hash = h.Hex(hashSize)
		}
		results = append(results, result)
	}

	if jsonOutput {
		if err := outputJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(os.Stderr, "%s: %s\n", r.Path, r.Error)
				continue
			}
			fmt.Printf("%s  %s\n", r.Hash, r.Path)
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to hash %d of %d files", failed, len(args))
	}
	return nil
}

func hashFile(path string, hashSize int) (fingerprint.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return fingerprint.HashBytes(data, hashSize)
}
