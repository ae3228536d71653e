package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/stemflow/config"
	"github.com/petal-labs/stemflow/registry"
)

// NewRegistryCmd creates the "registry" subcommand group.
func NewRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Export and import registry snapshots",
	}

	cmd.PersistentFlags().String("config", "", "Config file path (defaults to env-only configuration)")

	cmd.AddCommand(newRegistryExportCmd())
	cmd.AddCommand(newRegistryImportCmd())
	return cmd
}

func newRegistryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <flow-file>...",
		Short: "Register flows and serialize them to a snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRegistryExport,
	}
	cmd.Flags().StringP("out", "o", "", "Output file path (default: stdout)")
	return cmd
}

func newRegistryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot-file>",
		Short: "Load a registry snapshot and list its flows",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegistryImport,
	}
}

func cliRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, exitError(exitValidation, "loading config: %s", err)
	}
	return registry.New(registry.WithConfig(cfg.Registry)), nil
}

func runRegistryExport(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()

	reg, err := cliRegistry(cmd)
	if err != nil {
		return err
	}
	for _, path := range args {
		f, err := loadFlow(path)
		if err != nil {
			return err
		}
		reg.Register(f)
	}

	data, err := reg.Serialize()
	if err != nil {
		return exitError(exitRegistry, "serializing registry: %s", err)
	}

	outputPath, _ := cmd.Flags().GetString("out")
	if outputPath == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o600); err != nil {
		return exitError(exitRegistry, "writing %s: %s", outputPath, err)
	}
	fmt.Fprintf(stdout, "wrote %d flows to %s (%d bytes)\n", reg.Len(), outputPath, len(data))
	return nil
}

func runRegistryImport(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()

	reg, err := cliRegistry(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0]) // #nosec G304 -- path from user CLI arg
	if err != nil {
		return exitError(exitFileNotFound, "reading snapshot: %s", err)
	}
	if err := reg.LoadSerialized(data); err != nil {
		return exitError(exitRegistry, "loading snapshot: %s", err)
	}

	for _, f := range reg.Flows() {
		fmt.Fprintf(stdout, "%s/%s version %s: %d tasks, %d edges\n",
			f.Project, f.Name, f.Version, f.Len(), len(f.Edges()))
	}
	return nil
}
