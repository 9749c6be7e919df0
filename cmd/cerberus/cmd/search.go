package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/retrieve"
	"github.com/cerberusindex/cerberus/pkg/searcher"
)

func init() {
	var mode, fusion string
	var limit int

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid keyword/semantic search over indexed symbols",
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

			if mode == "" {
				mode = cfg.Search.Mode
			}
			if fusion == "" {
				fusion = cfg.Search.Fusion
			}
			if limit <= 0 {
				limit = cfg.Search.Limit
			}

			results, err := s.Search(cmd.Context(), retrieve.Options{
				Query:          args[0],
				Mode:           retrieve.Mode(mode),
				Fusion:         retrieve.FusionMethod(fusion),
				Limit:          limit,
				KeywordWeight:  cfg.Search.KeywordWeight,
				SemanticWeight: cfg.Search.SemanticWeight,
			})
			if err != nil {
				return err
			}
			return emit(results)
		},
	}

	searchCmd.Flags().StringVar(&mode, "mode", "", "keyword, semantic, balanced, or auto")
	searchCmd.Flags().StringVar(&fusion, "fusion", "", "rrf or weighted")
	searchCmd.Flags().IntVar(&limit, "limit", 0, "max results")
	rootCmd.AddCommand(searchCmd)
}
