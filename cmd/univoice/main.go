package main

import (
	"os"

	"github.com/harunnryd/univoice/pkg/runner"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFiles   []string
	provider   string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "univoice",
		Short:         "UniVoice voice assistant call page",
		Version:       runner.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `UniVoice serves a single-page voice assistant call UI backed by a hosted
real-time voice provider. Without a subcommand it runs serve.`,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "env files loaded before reading the environment")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "override vendors.provider.provider (vapi, mock)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log_level")

	serve := newServeCmd(flags)
	root.AddCommand(serve, newPurgeCmd(flags))
	root.RunE = serve.RunE
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
