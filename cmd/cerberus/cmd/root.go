// Package cmd is the cerberus command tree. Every subcommand is a thin,
// undecorated call into the core library; no business logic lives here.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberusindex/cerberus/internal/config"
	cerrs "github.com/cerberusindex/cerberus/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:           "cerberus",
	Short:         "Deterministic code-context server for coding agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree under ctx; cancellation stops the
// watcher and any in-flight scan at the next boundary.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cerrs.FormatForCLI(err))
		return err
	}
	return nil
}

// projectContext resolves the root and config for the working directory.
func projectContext() (root string, cfg *config.Config, err error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", nil, err
	}
	root, err = config.FindProjectRoot(cwd)
	if err != nil {
		return "", nil, err
	}
	cfg, err = config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// emit prints v as indented JSON, the machine-facing default.
func emit(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
