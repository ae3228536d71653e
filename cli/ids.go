package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/stemflow"
	"github.com/petal-labs/stemflow/flowdef"
)

// NewIDsCmd creates the "ids" subcommand.
func NewIDsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ids <flow-file>",
		Short: "Compute stable task ids for a flow definition",
		Args:  cobra.ExactArgs(1),
		RunE:  runIDs,
	}

	cmd.Flags().Bool("debug", false, "Print the per-step refinement trace")
	cmd.Flags().String("format", "hex", "Id rendering: hex or base32")

	return cmd
}

func runIDs(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()

	debug, _ := cmd.Flags().GetBool("debug")
	format, _ := cmd.Flags().GetString("format")
	if format != "hex" && format != "base32" {
		return exitError(exitValidation, "unknown format %q (want hex or base32)", format)
	}

	f, err := loadFlow(args[0])
	if err != nil {
		return err
	}

	if debug {
		steps, err := stemflow.GenerateTaskIDsDebug(f)
		if err != nil {
			return exitError(exitValidation, "generating ids: %s", err)
		}
		printDebugTrace(stdout, f, steps)
		return nil
	}

	ids, err := stemflow.GenerateTaskIDs(f)
	if err != nil {
		return exitError(exitValidation, "generating ids: %s", err)
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, t := range f.Tasks() {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, renderID(ids[t], format))
	}
	return w.Flush()
}

func renderID(id stemflow.ID, format string) string {
	if format == "base32" {
		return id.Base32()
	}
	return id.String()
}

func printDebugTrace(w io.Writer, f *stemflow.Flow, steps []map[*stemflow.Task]stemflow.ID) {
	names := []string{"self", "forward", "backward", "concentric", "disambiguate"}
	for i, step := range steps {
		unique := make(map[stemflow.ID]struct{}, len(step))
		for _, id := range step {
			unique[id] = struct{}{}
		}
		fmt.Fprintf(w, "step %d (%s): %d unique of %d tasks\n", i+1, names[i], len(unique), f.Len())
	}
}

func loadFlow(path string) (*stemflow.Flow, error) {
	def, err := flowdef.ParseFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitValidation, "%s", err)
	}
	f, err := def.Build()
	if err != nil {
		return nil, exitError(exitValidation, "%s", err)
	}
	return f, nil
}
