package main

import (
	"github.com/spf13/cobra"

	"github.com/yari4ek89/siverbotv2/internal/app"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/profiling"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the operator API, inbound transports, zone poller and maintenance",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err = cfg.RequireTelegram(); err != nil {
		return err
	}

	prof, err := profiling.Start(profiling.FromEnv("bot", version), log)
	if err != nil {
		log.Warn("Profiling disabled", logger.Error(err))
	}
	defer func() { _ = prof.Stop() }()

	a, err := app.New(cmd.Context(), cfg, log, version)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Error("Failed to close resources", logger.Error(closeErr))
		}
	}()

	return a.Run(cmd.Context())
}
