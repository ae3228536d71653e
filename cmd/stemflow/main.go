package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/stemflow/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stemflow",
	Short: "Stable task identification for workflow graphs",
	Long:  "stemflow — compute stable, content-derived task ids for flow DAGs and manage registry snapshots.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("stemflow version %s\n", version))

	rootCmd.AddCommand(cli.NewIDsCmd())
	rootCmd.AddCommand(cli.NewRegistryCmd())
}
