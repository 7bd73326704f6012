// Package app assembles the service: config, logging, storage, the Telegram
// bot, the feed client, and the watch engine, all run under one supervisor.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autonotice/internal/commands"
	"autonotice/internal/config"
	"autonotice/internal/feed"
	"autonotice/internal/notify"
	"autonotice/internal/runtime/supervisor"
	"autonotice/internal/scheduler"
	"autonotice/internal/storage"
	"autonotice/internal/watch"
	logx "autonotice/pkg/logx"
)

const dailyRefreshJobID = "daily_refresh"

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	feed  *feed.Client
	notif *notify.Service
	reg   *scheduler.Registry
	part  *watch.Partitioner

	loc           *time.Location
	refreshHour   int
	refreshMinute int

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Watch.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("watch.timezone: %w", err)
		}
	}
	refreshAt := cfg.Watch.DailyRefresh
	if strings.TrimSpace(refreshAt) == "" {
		refreshAt = "23:50"
	}
	refreshHour, refreshMinute, err := config.ParseHHMM(refreshAt)
	if err != nil {
		return nil, fmt.Errorf("watch.daily_refresh: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	feedTimeout, err := config.ParseDurationOrDefault("feed.timeout", cfg.Feed.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	misfireGrace, err := config.ParseDurationOrDefault("watch.misfire_grace", cfg.Watch.MisfireGrace, time.Hour)
	if err != nil {
		return nil, err
	}
	cooldown, err := config.ParseDurationOrDefault("watch.cooldown", cfg.Watch.Cooldown, time.Hour)
	if err != nil {
		return nil, err
	}
	pacing, err := config.ParseDurationOrDefault("watch.pacing", cfg.Watch.Pacing, time.Minute)
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := config.ParseDurationOrDefault("watch.fetch_backoff", cfg.Watch.FetchBackoff, 5*time.Second)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	feedCli, err := feed.NewClient(feed.Config{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: feedTimeout,
	}, log.With(logx.String("comp", "feed")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notif, err := notify.New(notify.Config{
		Token:           cfg.Telegram.Token,
		TargetChatID:    cfg.Telegram.TargetChatID,
		AdminChatID:     cfg.Telegram.AdminChatID,
		PollTimeout:     pollTimeout,
		AlertRatePerMin: cfg.Telegram.AlertRatePerMin,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := scheduler.NewRegistry(loc, log.With(logx.String("comp", "scheduler")))

	pipe := watch.NewPipeline(feedCli, notif, notif, store, watch.PipelineConfig{
		FetchRetries: cfg.Watch.FetchRetries,
		FetchBackoff: fetchBackoff,
	}, nil, log.With(logx.String("comp", "pipeline")))

	runner := watch.NewRunner(store, pipe, notif, watch.RunnerConfig{
		Cooldown: cooldown,
		Pacing:   pacing,
	}, nil, log.With(logx.String("comp", "runner")))

	part := watch.NewPartitioner(store, reg, runner.Run, watch.PartitionerConfig{
		Groups:       cfg.Watch.Groups,
		MisfireGrace: misfireGrace,
	}, loc, nil, log.With(logx.String("comp", "partitioner")))

	cmds := commands.NewHandler(store, part.Refresh, commands.Config{
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
	}, log.With(logx.String("comp", "commands")))
	if err := cmds.Register(notif.Bot()); err != nil {
		// Menu publication needs the Telegram API; a failure here is
		// cosmetic (handlers are installed regardless).
		log.Warn("command menu publication failed", logx.Err(err))
	}

	return &App{
		cfgPath:       cfgPath,
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		store:         store,
		feed:          feedCli,
		notif:         notif,
		reg:           reg,
		part:          part,
		loc:           loc,
		refreshHour:   refreshHour,
		refreshMinute: refreshMinute,
	}, nil
}

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.sup.Go("scheduler.run", a.reg.Run)
	a.sup.Go("telegram.poll", a.notif.Run)
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if err := a.reg.Upsert(scheduler.Job{
		ID:      dailyRefreshJobID,
		Trigger: scheduler.Recurring{Hour: a.refreshHour, Minute: a.refreshMinute},
		Run:     a.part.Refresh,
	}); err != nil {
		return err
	}

	// Build today's schedule right away rather than waiting for the nightly
	// rebuild; the catch-up pass inside Refresh covers triggers that already
	// passed while the process was down.
	a.sup.Go0("schedule.bootstrap", a.part.Refresh)

	// Hot reload: only logging applies live. The rest (tokens, storage paths,
	// schedule shape) takes effect on restart, which the reload log makes
	// visible to the operator.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging config applied; other sections take effect on restart")
			}
		}
	})

	a.log.Info("started",
		logx.String("config", a.cfgPath),
		logx.String("timezone", a.loc.String()),
		logx.String("daily_refresh", fmt.Sprintf("%02d:%02d", a.refreshHour, a.refreshMinute)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
