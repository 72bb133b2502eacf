package main

import (
	"fmt"

	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/univoice"
	"github.com/spf13/cobra"
)

func newPurgeCmd(flags *rootFlags) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete call timelines older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if days > 0 {
				cfg.Observability.RetentionDays = days
			}
			if cfg.Observability.ArtifactsDir == "" || cfg.Retention() <= 0 {
				return fmt.Errorf("purge needs observability.artifacts_dir and a positive retention")
			}
			log := logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			removed, err := univoice.PurgeArtifacts(cfg, log)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d timeline(s) from %s\n", removed, cfg.Observability.ArtifactsDir)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override observability.retention_days")
	return cmd
}
