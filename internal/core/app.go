package core

import (
	"context"
	"fmt"
	"sync"

	"chungus/internal/adapters/discord"
	"chungus/internal/audit"
	"chungus/internal/config"
	"chungus/internal/eventbus"
	"chungus/internal/guard"
	"chungus/internal/kit"
	"chungus/internal/storage"
	logx "chungus/pkg/logx"
)

// App owns the explicit wiring: config -> logging -> storage -> bus ->
// gateway adapter -> reactor -> dispatcher -> audit. There is no
// ambient singleton; everything receives its dependencies here.
type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	bus     eventbus.Bus
	adapter kit.Adapter
	reactor *guard.Reactor
	disp    *Dispatcher
	audit   *audit.Service

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
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

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()

	adapter, err := discord.New(discord.Config{
		Token:  cfg.Discord.Token,
		Status: cfg.Discord.Status,
	}, log.With(logx.String("comp", "discord")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reactor := guard.NewReactor(store, adapter, bus, log.With(logx.String("comp", "guard")))
	disp := NewDispatcher(store, adapter, bus, log.With(logx.String("comp", "commands")), cfg.Prefix())

	retention, err := config.ParseDurationField("audit.retention", auditRetention(cfg))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	auditSvc := audit.New(audit.Config{
		Enabled:       cfg.AuditEnabled(),
		Retention:     retention,
		PruneSchedule: auditSchedule(cfg),
	}, store, bus, log.With(logx.String("comp", "audit")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		bus:     bus,
		adapter: adapter,
		reactor: reactor,
		disp:    disp,
		audit:   auditSvc,
	}, nil
}

func auditRetention(cfg *config.Config) string {
	if cfg.Audit == nil {
		return ""
	}
	return cfg.Audit.Retention
}

func auditSchedule(cfg *config.Config) string {
	if cfg.Audit == nil {
		return ""
	}
	return cfg.Audit.PruneSchedule
}

// Dispatcher exposes the command registry so main can register plugins
// before Start.
func (a *App) Dispatcher() *Dispatcher { return a.disp }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if err := a.audit.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// Config hot reload: prefix and log level apply live.
	go func() {
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := a.cfgm.Subscribe(4)
	go func() {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.disp.SetPrefix(cfg.Prefix())
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
			}
		}
	}()

	ev := kit.Events{
		GuildCreate: func(ctx context.Context, guildID string) {
			a.logStoreErr("guild create", a.reactor.HandleGuildCreate(ctx, guildID))
		},
		GuildDelete: func(ctx context.Context, guildID string) {
			a.logStoreErr("guild delete", a.reactor.HandleGuildDelete(ctx, guildID))
		},
		MemberAdd: func(ctx context.Context, guildID, userID string) {
			a.logStoreErr("member add", a.reactor.HandleMemberAdd(ctx, guildID, userID))
		},
		BanAdd: func(ctx context.Context, guildID, userID string) {
			a.logStoreErr("ban add", a.reactor.HandleBanAdd(ctx, guildID, userID))
		},
		WebhookUpdate: func(ctx context.Context, guildID, channelID string) {
			a.logStoreErr("webhook update", a.reactor.HandleWebhookUpdate(ctx, guildID, channelID))
		},
		MessageCreate: func(ctx context.Context, msg kit.Message) {
			a.logStoreErr("dispatch", a.disp.Dispatch(ctx, msg))
		},
	}

	if err := a.adapter.Start(runCtx, ev); err != nil {
		cancel()
		_ = a.audit.Stop(ctx)
		return fmt.Errorf("gateway: %w", err)
	}

	a.log.Info("started", logx.String("prefix", a.disp.Prefix()))
	return nil
}

// logStoreErr surfaces store failures; by the reactor/dispatcher
// contract those are the only errors that reach here.
func (a *App) logStoreErr(op string, err error) {
	if err != nil {
		a.log.Error("store failure", logx.String("op", op), logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var firstErr error
	if err := a.adapter.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.audit.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
