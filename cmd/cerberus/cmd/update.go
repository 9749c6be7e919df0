package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/incremental"
	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

func init() {
	var force bool
	var noGit bool

	updateCmd := &cobra.Command{
		Use:   "update [paths...]",
		Short: "Incrementally repair the index from git or a path batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectContext()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.IndexPath(root))
			if err != nil {
				return err
			}
			defer st.Close()

			engine := incremental.NewEngine(st, scan.NewScanner(nil), root, nil)

			var probe incremental.GitProbe
			if !noGit && len(args) == 0 {
				if _, statErr := os.Stat(root + "/.git"); statErr == nil {
					probe = incremental.NewGitProbe(root)
				}
			}

			result, err := engine.Update(cmd.Context(), probe, args, force)
			if err != nil {
				return err
			}
			return emit(result)
		},
	}
	updateCmd.Flags().BoolVar(&force, "force", false, "force a full reparse")
	updateCmd.Flags().BoolVar(&noGit, "no-git", false, "skip git change detection")
	rootCmd.AddCommand(updateCmd)
}
