package main

import (
	"fmt"

	"github.com/4thel00z/glance/internal"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "glance",
		Short: "Screen-aware assistant backed by your own documents",
		Long: `Ask questions about what is on your screen. Answers draw on a local
index of manuals and notes and are checked by a second model pass.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	setHelpWithExternals(rootCmd)

	if a != nil {
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("scope", "", "Target scope (global|project)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func addSubcommands(root *cobra.Command, a *app) {
	svc := a.services
	resolver := a.resolver

	root.PersistentPreRunE = a.loadEnv

	root.AddCommand(
		NewInitCmd(resolver),
		NewAskCmd(svc),
		NewChatCmd(svc),
		NewIngestCmd(svc),
		NewWatchCmd(svc),
		NewSearchCmd(svc),
		NewIndexCmd(svc),
		NewClearCmd(svc),
		NewProviderCmd(
			internal.NewProviderListUseCase(resolver),
			internal.NewProviderAddUseCase(resolver),
			internal.NewProviderRemoveUseCase(resolver),
			internal.NewProviderSetDefaultUseCase(resolver),
			internal.NewProviderTestUseCase(resolver),
		),
	)
}

func setHelpWithExternals(cmd *cobra.Command) {
	defaultHelp := cmd.HelpFunc()

	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		printExternalCommands(c)
	})
}

func printExternalCommands(cmd *cobra.Command) {
	externals := listExternalCommands()
	if len(externals) == 0 {
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nExternal commands (glance-*):")
	for _, name := range externals {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
}
