package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/graph"
	"github.com/cerberusindex/cerberus/pkg/searcher"
)

func init() {
	var filePath, parentClass string

	getCmd := &cobra.Command{
		Use:   "get-symbol <name>",
		Short: "Exact symbol lookup (routed through the daemon when running)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}
			s, err := searcher.Open(root, cfg.IndexPath(root), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			symbols, err := s.GetSymbol(cmd.Context(), args[0], filePath, parentClass)
			if err != nil {
				return err
			}
			return emit(symbols)
		},
	}
	getCmd.Flags().StringVar(&filePath, "file", "", "restrict to a file")
	getCmd.Flags().StringVar(&parentClass, "class", "", "restrict to a parent class")
	rootCmd.AddCommand(getCmd)

	blueprintCmd := &cobra.Command{
		Use:   "blueprint <file>",
		Short: "Structural view of a file: symbols and signatures, no bodies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}
			s, err := searcher.Open(root, cfg.IndexPath(root), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			bp, err := s.Blueprint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(bp)
		},
	}
	rootCmd.AddCommand(blueprintCmd)

	var bases, callers, callees bool
	contextCmd := &cobra.Command{
		Use:   "context <symbol>",
		Short: "Assemble target source, skeletonized bases, and neighbors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}
			s, err := searcher.Open(root, cfg.IndexPath(root), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.Context(cmd.Context(), args[0], graph.ContextOptions{
				IncludeBases: bases, IncludeCallers: callers, IncludeCallees: callees,
			})
			if err != nil {
				return err
			}
			return emit(result)
		},
	}
	contextCmd.Flags().BoolVar(&bases, "bases", true, "include skeletonized base classes")
	contextCmd.Flags().BoolVar(&callers, "callers", false, "include direct callers")
	contextCmd.Flags().BoolVar(&callees, "callees", false, "include direct callees")
	rootCmd.AddCommand(contextCmd)
}
