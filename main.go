package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/yari4ek89/siverbotv2/internal/config"
	"github.com/yari4ek89/siverbotv2/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.yml"

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "siverbot",
		Short:         "OSINT relay and air-alert poller for Telegram channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default $CONFIG_PATH or ./"+defaultConfigPath+")")

	root.AddCommand(
		serveCommand(),
		pollOnceCommand(),
		classifyCommand(),
		migrateCommand(),
		flushDedupCommand(),
		versionCommand(),
	)
	return root
}

// loadConfig returns the validated configuration and a logger built from it.
func loadConfig() (*config.Config, logger.Logger, error) {
	path := configPath
	if path == "" {
		path = config.GetConfigPath(defaultConfigPath)
	}

	cfg, err := config.LoadService(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With(logger.String("service", "siverbot"), logger.String("version", version)), nil
}
