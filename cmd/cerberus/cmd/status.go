package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/limits"
	"github.com/cerberusindex/cerberus/pkg/searcher"
	"github.com/cerberusindex/cerberus/pkg/version"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Index-wide counts",
		Args:  cobra.NoArgs,
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

			stats, err := s.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return emit(stats)
		},
	}
	rootCmd.AddCommand(statsCmd)

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks and the index integrity check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}

			report := map[string]any{}
			report["preflight"] = limits.Preflight(cmd.Context(), limits.Load(), root, cfg.IndexPath(root))

			s, err := searcher.Open(root, cfg.IndexPath(root), nil)
			if err == nil {
				defer s.Close()
				if integrity, err := s.Integrity(cmd.Context()); err == nil {
					report["integrity"] = integrity
					report["integrity_clean"] = integrity.Clean()
				}
				report["blueprint_cache"] = s.BlueprintStats()
			}
			return emit(report)
		},
	}
	rootCmd.AddCommand(doctorCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emit(version.GetInfo())
		},
	}
	rootCmd.AddCommand(versionCmd)
}
