package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/graph"
	"github.com/cerberusindex/cerberus/internal/quality"
	"github.com/cerberusindex/cerberus/pkg/searcher"
)

func init() {
	var depth int

	withSearcher := func(run func(cmd *cobra.Command, args []string, s *searcher.Searcher) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}
			s, err := searcher.Open(root, cfg.IndexPath(root), nil)
			if err != nil {
				return err
			}
			defer s.Close()
			return run(cmd, args, s)
		}
	}

	callersCmd := &cobra.Command{
		Use:   "callers <symbol>",
		Short: "Reverse call graph into a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: withSearcher(func(cmd *cobra.Command, args []string, s *searcher.Searcher) error {
			g, err := s.Callers(cmd.Context(), args[0], graph.TraversalOptions{MaxDepth: depth})
			if err != nil {
				return err
			}
			return emit(g)
		}),
	}
	callersCmd.Flags().IntVar(&depth, "depth", 0, "traversal depth (0 = default)")
	rootCmd.AddCommand(callersCmd)

	calleesCmd := &cobra.Command{
		Use:   "callees <symbol>",
		Short: "Forward call graph out of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: withSearcher(func(cmd *cobra.Command, args []string, s *searcher.Searcher) error {
			g, err := s.Callees(cmd.Context(), args[0], graph.TraversalOptions{MaxDepth: depth})
			if err != nil {
				return err
			}
			return emit(g)
		}),
	}
	calleesCmd.Flags().IntVar(&depth, "depth", 0, "traversal depth (0 = default)")
	rootCmd.AddCommand(calleesCmd)

	traceCmd := &cobra.Command{
		Use:   "trace <source> <target>",
		Short: "Shortest call paths between two symbols",
		Args:  cobra.ExactArgs(2),
		RunE: withSearcher(func(cmd *cobra.Command, args []string, s *searcher.Searcher) error {
			paths, err := s.Trace(cmd.Context(), args[0], args[1], depth)
			if err != nil {
				return err
			}
			return emit(paths)
		}),
	}
	rootCmd.AddCommand(traceCmd)

	mroCmd := &cobra.Command{
		Use:   "mro <class>",
		Short: "Linearized inheritance order of a class",
		Args:  cobra.ExactArgs(1),
		RunE: withSearcher(func(cmd *cobra.Command, args []string, s *searcher.Searcher) error {
			result, err := s.MRO(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(result)
		}),
	}
	rootCmd.AddCommand(mroCmd)

	predictCmd := &cobra.Command{
		Use:   "predict <symbol>",
		Short: "Predict symbols likely to change alongside one",
		Args:  cobra.ExactArgs(1),
		RunE: withSearcher(func(cmd *cobra.Command, args []string, s *searcher.Searcher) error {
			predictions, err := quality.PredictRelatedChanges(cmd.Context(), s.Store, args[0], 0)
			if err != nil {
				return err
			}
			return emit(predictions)
		}),
	}
	rootCmd.AddCommand(predictCmd)
}
