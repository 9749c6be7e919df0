package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/mutate"
)

// batchSpec is the stdin format of `cerberus batch`: a list of ops plus
// an optional verify command.
type batchSpec struct {
	Ops    []mutate.BatchOp `json:"ops"`
	Verify string           `json:"verify,omitempty"`
}

func init() {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply an atomic batch of edits/deletes read as JSON from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			var spec batchSpec
			if err := json.Unmarshal(raw, &spec); err != nil {
				return err
			}

			engine, done, err := openMutator()
			if err != nil {
				return err
			}
			defer done()

			result, err := engine.Batch(cmd.Context(), spec.Ops, mutate.BatchOptions{
				VerifyCommand: spec.Verify,
			})
			if err != nil {
				return err
			}
			return emit(result)
		},
	}
	rootCmd.AddCommand(batchCmd)
}
