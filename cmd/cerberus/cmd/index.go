package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/pkg/indexer"
)

func init() {
	var extensions []string
	var embeddings bool
	var workers int

	indexCmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Scan a directory into the index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				root = args[0]
			}

			result, err := indexer.Index(cmd.Context(), root, indexer.Options{
				IndexPath:       cfg.IndexPath(root),
				Extensions:      extensions,
				StoreEmbeddings: embeddings || cfg.Embeddings.Enabled,
				Workers:         workers,
			})
			if err != nil {
				return err
			}
			return emit(result)
		},
	}

	indexCmd.Flags().StringSliceVar(&extensions, "ext", nil, "restrict to these file extensions")
	indexCmd.Flags().BoolVar(&embeddings, "embeddings", false, "also store symbol embeddings")
	indexCmd.Flags().IntVar(&workers, "workers", 0, "parallel parser workers (0 = auto)")
	rootCmd.AddCommand(indexCmd)
}
