package cmd

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Hash cache commands",
	Long:  `Commands for inspecting the append-only hash cache.`,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}
