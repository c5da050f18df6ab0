package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/yari4ek89/siverbotv2/internal/logger"
)

// Run starts the API server, the inbound transports, the zone poller and
// the maintenance schedule, and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	maint, err := a.startMaintenance(ctx)
	if err != nil {
		return err
	}
	defer func() { <-maint.Stop().Done() }()

	type component struct {
		name string
		run  func(context.Context) error
	}
	components := []component{
		{name: "api", run: a.server.Run},
		{name: "poller", run: a.poller.Run},
	}
	if a.bot != nil {
		components = append(components, component{name: "bot", run: a.bot.Run})
	}
	if a.subscriber != nil {
		components = append(components, component{name: "ingest", run: a.subscriber.Run})
	}

	a.log.Info("Starting siverbot",
		logger.String("version", a.version),
		logger.Int("components", len(components)),
		logger.Bool("bot", a.bot != nil),
		logger.Bool("redis_ingest", a.subscriber != nil),
	)

	errCh := make(chan error, len(components))
	var wg sync.WaitGroup
	for _, c := range components {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if runErr := c.run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", c.name, runErr)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	close(errCh)

	var errs []error
	for e := range errCh {
		a.log.Error("Component failed", logger.Error(e))
		errs = append(errs, e)
	}
	a.log.Info("Service stopped")
	return errors.Join(errs...)
}

// startMaintenance schedules expiry of dedup records and fingerprints.
func (a *App) startMaintenance(ctx context.Context) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := c.AddFunc(a.cfg.Dedup.CleanupSchedule, func() { a.cleanup(ctx) }); err != nil {
		return nil, fmt.Errorf("dedup cleanup schedule %q: %w", a.cfg.Dedup.CleanupSchedule, err)
	}
	c.Start()
	return c, nil
}

// cleanup runs one maintenance pass against the current dedup window.
func (a *App) cleanup(ctx context.Context) {
	settings, err := a.settings.Get(ctx)
	if err != nil {
		a.log.Warn("Dedup cleanup skipped", logger.Error(err))
		return
	}
	window := settings.DedupWindow()

	removed, err := a.dedup.Cleanup(ctx, window)
	if err != nil {
		a.log.Error("Dedup cleanup failed", logger.Error(err))
		return
	}
	pruned := a.dedup.Prune(window)
	if removed > 0 || pruned > 0 {
		a.log.Debug("Dedup cleanup",
			logger.Int("records", removed),
			logger.Int("fingerprints", pruned),
		)
	}
}
