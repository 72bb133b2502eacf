package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/univoice"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the call page until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			log := logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			app, err := univoice.NewApp(cfg, univoice.AppOptions{Logger: log, Banner: os.Stdout})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
}

func loadConfig(flags *rootFlags) (univoice.Config, error) {
	cfg, err := univoice.LoadConfig(univoice.LoadOptions{Path: flags.configPath, EnvFiles: flags.envFiles})
	if err != nil {
		return univoice.Config{}, err
	}
	if p := strings.TrimSpace(flags.provider); p != "" {
		cfg.Vendors.Provider.Provider = p
	}
	if l := strings.TrimSpace(flags.logLevel); l != "" {
		cfg.LogLevel = l
	}
	return cfg, nil
}
