package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yari4ek89/siverbotv2/internal/app"
	"github.com/yari4ek89/siverbotv2/internal/classifier"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/pipeline"
	"github.com/yari4ek89/siverbotv2/internal/storage"
)

func pollOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll-once",
		Short: "Run a single zone status tick and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err = cfg.RequireTelegram(); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, log, version)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.PollOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func classifyCommand() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify text from the arguments or stdin without routing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			p := pipeline.New(pipeline.Config{Classifier: classifier.New(nil)})
			d := p.Inspect(text, source, time.Now().UTC())
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"decision":  d,
				"dedup_key": pipeline.DedupKey(d.Report),
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "source name recorded on the report")
	return cmd
}

func migrateCommand() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := storage.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if down > 0 {
				err = storage.MigrateDown(db, down, log)
			} else {
				err = storage.RunMigrations(db, log)
			}
			if err != nil {
				return err
			}

			v, dirty, err := storage.MigrationVersion(db)
			if err != nil {
				return err
			}
			log.Info("Database schema", logger.Int64("version", int64(v)), logger.Bool("dirty", dirty))
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")
	return cmd
}

func flushDedupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-dedup",
		Short: "Clear the exact-key dedup table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := app.New(cmd.Context(), cfg, log, version)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err = a.FlushDedup(cmd.Context()); err != nil {
				return err
			}
			log.Info("Dedup table flushed", logger.String("backend", cfg.Dedup.Backend))
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "siverbot %s\n", version)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

