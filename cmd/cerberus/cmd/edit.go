package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/mutate"
	"github.com/cerberusindex/cerberus/internal/store"
)

// openMutator wires a mutation engine for the current project.
func openMutator() (*mutate.Engine, func(), error) {
	root, cfg, err := projectContext()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.IndexPath(root))
	if err != nil {
		return nil, nil, err
	}
	return mutate.NewEngine(st, root, nil), func() { _ = st.Close() }, nil
}

func init() {
	var symType, parentClass string
	var force, noFormat bool

	editCmd := &cobra.Command{
		Use:   "edit <file> <symbol>",
		Short: "Surgically replace a symbol with code read from stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newCode, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			engine, done, err := openMutator()
			if err != nil {
				return err
			}
			defer done()

			result, err := engine.Edit(cmd.Context(), mutate.EditRequest{
				FilePath:    args[0],
				SymbolName:  args[1],
				NewCode:     string(newCode),
				SymbolType:  store.SymbolType(symType),
				ParentClass: parentClass,
				Force:       force,
				Format:      !noFormat,
			})
			if err != nil {
				return err
			}
			return emit(result)
		},
	}
	editCmd.Flags().StringVar(&symType, "type", "", "symbol type qualifier")
	editCmd.Flags().StringVar(&parentClass, "class", "", "parent class qualifier")
	editCmd.Flags().BoolVar(&force, "force", false, "override the symbol guard")
	editCmd.Flags().BoolVar(&noFormat, "no-format", false, "skip the auto-formatter")
	rootCmd.AddCommand(editCmd)

	var keepDecorators bool
	deleteCmd := &cobra.Command{
		Use:   "delete <file> <symbol>",
		Short: "Surgically remove a symbol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openMutator()
			if err != nil {
				return err
			}
			defer done()

			result, err := engine.Delete(cmd.Context(), mutate.DeleteRequest{
				FilePath:       args[0],
				SymbolName:     args[1],
				SymbolType:     store.SymbolType(symType),
				ParentClass:    parentClass,
				Force:          force,
				KeepDecorators: keepDecorators,
			})
			if err != nil {
				return err
			}
			return emit(result)
		},
	}
	deleteCmd.Flags().BoolVar(&keepDecorators, "keep-decorators", false, "leave leading decorators in place")
	deleteCmd.Flags().BoolVar(&force, "force", false, "override the symbol guard")
	rootCmd.AddCommand(deleteCmd)

	undoCmd := &cobra.Command{
		Use:   "undo [transaction-id]",
		Short: "Revert a recorded mutation (latest when no id given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openMutator()
			if err != nil {
				return err
			}
			defer done()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			result, err := engine.Undo(cmd.Context(), id)
			if err != nil {
				return err
			}
			return emit(result)
		},
	}
	rootCmd.AddCommand(undoCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List undoable transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openMutator()
			if err != nil {
				return err
			}
			defer done()

			history, err := engine.History(cmd.Context(), 20)
			if err != nil {
				return err
			}
			return emit(history)
		},
	}
	rootCmd.AddCommand(historyCmd)
}
