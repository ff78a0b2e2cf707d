package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/4thel00z/glance/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd(resolver *internal.ScopeResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a glance data directory",
		Long: `Create a .glance directory holding the config and the document index.
Without --global the directory is created in the working directory and used by
every command run below it.`,
		RunE: makeInitRunner(resolver),
	}

	cmd.Flags().Bool("global", false, "Initialize global scope (~/.glance)")
	return cmd
}

func makeInitRunner(resolver *internal.ScopeResolver) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		isGlobal, _ := cmd.Flags().GetBool("global")

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}

		scopeType := internal.ScopeProject
		dataPath := filepath.Join(cwd, internal.DataDirName)
		if isGlobal {
			scopeType = internal.ScopeGlobal
			dataPath = resolver.Global().DataPath
		}

		if _, err := os.Stat(dataPath); err == nil {
			return fmt.Errorf("already initialized at %s", dataPath)
		}

		scope, err := resolver.Init(scopeType, cwd)
		if err != nil {
			return err
		}

		if err := internal.SaveConfig(scope, internal.DefaultConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized glance at %s\n", scope.DataPath)
		return nil
	}
}
