// Package app wires the siverbot components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yari4ek89/siverbotv2/internal/api"
	"github.com/yari4ek89/siverbotv2/internal/classifier"
	"github.com/yari4ek89/siverbotv2/internal/config"
	"github.com/yari4ek89/siverbotv2/internal/dedup"
	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/httpclient"
	"github.com/yari4ek89/siverbotv2/internal/ingest"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/pipeline"
	"github.com/yari4ek89/siverbotv2/internal/queue"
	"github.com/yari4ek89/siverbotv2/internal/redis"
	"github.com/yari4ek89/siverbotv2/internal/retry"
	"github.com/yari4ek89/siverbotv2/internal/router"
	"github.com/yari4ek89/siverbotv2/internal/storage"
	"github.com/yari4ek89/siverbotv2/internal/telegram"
	"github.com/yari4ek89/siverbotv2/internal/telemetry"
	"github.com/yari4ek89/siverbotv2/internal/zones"
)

const (
	feedTimeout = 10 * time.Second
	// Bot API long polls hold the response for PollTimeout.
	pollSlack = 10 * time.Second
)

// App owns every long-lived component.
type App struct {
	cfg     *config.Config
	log     logger.Logger
	version string

	db    *sqlx.DB
	redis *goredis.Client

	telemetry  *telemetry.Provider
	settings   *storage.SettingsRepository
	sources    *storage.SourceRepository
	places     *storage.PlaceRepository
	classifier *classifier.Classifier
	dedup      *dedup.Engine
	queue      *queue.Queue
	router     *router.Router
	pipeline   *pipeline.Pipeline
	client     *telegram.Client
	poller     *zones.Poller
	bot        *telegram.Bot
	subscriber *ingest.Subscriber
	server     *api.Server
}

// New opens the store, applies migrations and builds every component.
// Nothing is started.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, version string) (*App, error) {
	a := &App{
		cfg:       cfg,
		log:       log,
		version:   version,
		telemetry: telemetry.NewProvider(nil),
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db

	if err = storage.RunMigrations(db, log); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if cfg.Dedup.Backend == "redis" || cfg.Ingest.RedisChannel != "" {
		if a.redis, err = redis.NewClient(cfg.Redis); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	if err = a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	defaults, err := DefaultSettings(cfg.Defaults)
	if err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	a.settings = storage.NewSettingsRepository(a.db, defaults)
	a.sources = storage.NewSourceRepository(a.db)
	a.places = storage.NewPlaceRepository(a.db)

	if err = a.seedSources(ctx); err != nil {
		return err
	}

	places, err := a.places.All(ctx)
	if err != nil {
		return err
	}
	a.classifier = classifier.New(places)

	var table dedup.Table = storage.NewDedupRepository(a.db, nil)
	if cfg.Dedup.Backend == "redis" {
		table = dedup.NewRedisTable(a.redis, cfg.Dedup.RedisKey, nil)
	}
	a.dedup = dedup.NewEngine(table, dedup.WithThreshold(cfg.Dedup.SimilarityThreshold))

	var publisher router.Publisher = noTelegram{}
	var notifier router.Notifier
	if cfg.Telegram.BotToken != "" {
		a.client, err = telegram.NewClient(
			httpclient.New(httpclient.Config{
				Timeout:               cfg.Telegram.PollTimeout + pollSlack,
				ResponseHeaderTimeout: cfg.Telegram.PollTimeout + pollSlack,
			}),
			telegram.Config{
				Token:       cfg.Telegram.BotToken,
				BaseURL:     cfg.Telegram.APIURL,
				PollTimeout: cfg.Telegram.PollTimeout,
				RateLimit:   cfg.Telegram.RateLimitPerSecond,
				Retry:       retry.DefaultConfig(),
			},
			a.log, a.telemetry,
		)
		if err != nil {
			return err
		}
		publisher = a.client
	} else {
		a.log.Warn("telegram.bot_token is not set, nothing will be published")
	}

	if a.client != nil && cfg.Telegram.AdminID != 0 {
		notifier = telegram.NewNotifier(a.client, cfg.Telegram.AdminID)
	} else if a.client != nil {
		a.log.Warn("telegram.admin_id is not set, queued reports will not be announced")
	}

	a.queue = queue.New(storage.NewQueueRepository(a.db), nil)
	a.router = router.New(router.Config{
		Settings:  a.settings,
		Dedup:     a.dedup,
		Queue:     a.queue,
		Publisher: publisher,
		Notifier:  notifier,
		Logger:    a.log,
		Telemetry: a.telemetry,
	})
	a.pipeline = pipeline.New(pipeline.Config{
		Sources:    a.sources,
		Classifier: a.classifier,
		Router:     a.router,
		Settings:   a.settings,
		Logger:     a.log,
		Telemetry:  a.telemetry,
	})

	if a.poller, err = a.buildPoller(publisher); err != nil {
		return err
	}

	if a.client != nil && cfg.Telegram.UpdatesEnabled() {
		a.bot = telegram.NewBot(telegram.BotConfig{
			Client:   a.client,
			AdminID:  cfg.Telegram.AdminID,
			Operator: a.router,
			Ingest:   a.pipeline,
			Settings: a.settings,
			Sources:  a.sources,
			Queue:    a.queue,
			Logger:   a.log,
		})
	}

	if cfg.Ingest.RedisChannel != "" {
		a.subscriber = ingest.NewSubscriber(a.redis, cfg.Ingest.RedisChannel, a.pipeline, a.log)
	}

	a.server = api.NewServer(cfg.Server, cfg.Debug, a.log, api.NewHandler(api.Deps{
		Operator:  a.router,
		Queue:     a.queue,
		Settings:  a.settings,
		Sources:   a.sources,
		Places:    a.places,
		Reloader:  a.classifier,
		Zones:     a.poller,
		Ingest:    a.pipeline,
		Dedup:     a.dedup,
		DB:        a.db,
		Metrics:   a.telemetry.Handler(),
		JWTSecret: cfg.API.JWTSecret,
	}))
	return nil
}

func (a *App) buildPoller(publisher zones.Publisher) (*zones.Poller, error) {
	cfg := a.cfg

	loc, err := time.LoadLocation(cfg.Alerts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("alerts timezone: %w", err)
	}

	var (
		feed     zones.Feed
		zoneList []domain.Zone
	)
	if cfg.Alerts.URL == "" {
		if len(cfg.Zones) > 0 {
			a.log.Warn("alerts.url is not set, zone poller disabled", logger.Int("zones", len(cfg.Zones)))
		}
	} else {
		feed = zones.NewHTTPFeed(httpclient.New(httpclient.Config{Timeout: feedTimeout}), zones.HTTPFeedConfig{
			URL:        cfg.Alerts.URL,
			Token:      cfg.Alerts.Token,
			AuthHeader: cfg.Alerts.AuthHeader,
			AuthPrefix: cfg.Alerts.AuthPrefix,
			Retry:      retry.DefaultConfig(),
		})
		zoneList = make([]domain.Zone, 0, len(cfg.Zones))
		for _, z := range cfg.Zones {
			zoneList = append(zoneList, domain.Zone{ID: z.ID, Name: z.Name})
		}
	}

	return zones.New(zones.Config{
		Zones:     zoneList,
		Feed:      feed,
		Store:     storage.NewZoneStateRepository(a.db),
		Publisher: publisher,
		Settings:  a.settings,
		Step: zones.StepConfig{
			ConfirmCount: cfg.Alerts.ConfirmCount,
			Cooldown:     cfg.Alerts.Cooldown(),
		},
		UIDOffset: cfg.Alerts.UIDOffset,
		Alphabet:  zones.ParseAlphabet(cfg.Alerts.ActiveSymbols),
		Interval:  cfg.Alerts.PollInterval(),
		Location:  loc,
		Logger:    a.log,
		Telemetry: a.telemetry,
	}), nil
}

// errNoTelegram is returned by sends when no bot token is configured.
var errNoTelegram = errors.New("telegram bot token is not configured")

type noTelegram struct{}

func (noTelegram) Publish(context.Context, string, string) error { return errNoTelegram }

// PollOnce runs a single zone tick.
func (a *App) PollOnce(ctx context.Context) (zones.TickResult, error) {
	return a.poller.Tick(ctx)
}

// FlushDedup clears the exact-key dedup table.
func (a *App) FlushDedup(ctx context.Context) error {
	return a.dedup.Flush(ctx)
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
