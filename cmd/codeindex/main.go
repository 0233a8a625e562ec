// Package main provides the entry point for the codeindex CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-labs/codeindex/cmd/codeindex/commands"
	"github.com/kestrel-labs/codeindex/pkg/version"
)

// exitArgError is reserved for argument-validation failures; session-start
// never uses it for a warning result.
const exitArgError = 2

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "codeindex",
		Short: "codeindex - code-intelligence indexing pipeline",
		Long: `codeindex discovers a project's source files, extracts structural
entities and relations, embeds each unit as a dense vector, and upserts the
result into a vector database collection.

Commands:
  index          Run the indexing pipeline against a project
  session-start  Check whether an existing index is fresh enough to rely on`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")

	rootCmd.AddCommand(commands.NewIndexCommand(&configPath))
	rootCmd.AddCommand(commands.NewSessionStartCommand(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var argErr commands.ArgumentError
		if errors.As(err, &argErr) {
			os.Exit(exitArgError)
		}

		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "codeindex %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
