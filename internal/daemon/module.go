package daemon

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/config"
	"github.com/dmelari/chatmirror/internal/counters"
	"github.com/dmelari/chatmirror/internal/history"
	"github.com/dmelari/chatmirror/internal/lock"
	"github.com/dmelari/chatmirror/internal/logging"
	"github.com/dmelari/chatmirror/internal/outbox"
	"github.com/dmelari/chatmirror/internal/profile"
	"github.com/dmelari/chatmirror/internal/push"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/router"
	"github.com/dmelari/chatmirror/internal/status"
	"github.com/dmelari/chatmirror/internal/store"
	intsync "github.com/dmelari/chatmirror/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ConfigPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideClient,
			provideTransport,
			provideSyncEngine,
			provideLoader,
			provideOutbox,
			provideCounters,
			provideTyping,
			provideRouter,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Remote.BaseURL == "" || cfg.Remote.SocketURL == "" {
		return nil, fmt.Errorf("config %s: remote.base_url and remote.socket_url are required", path)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(cfg *config.Config) *remote.Client {
	return remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token)
}

func provideTransport(cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *push.Transport {
	return push.NewTransport(push.Config{
		URL:   cfg.Remote.SocketURL,
		Token: cfg.Remote.Token,
	}, b, machine, logger)
}

func provideSyncEngine(db *store.DB, client *remote.Client, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, client, b, logger)
}

func provideLoader(db *store.DB, client *remote.Client, b *bus.Bus, logger *zap.Logger) *history.Loader {
	return history.NewLoader(db, client, b, logger)
}

func provideOutbox(db *store.DB, t *push.Transport, client *remote.Client, loader *history.Loader, b *bus.Bus, logger *zap.Logger) *outbox.Outbox {
	return outbox.New(db, t, client, loader, b, logger, outbox.Options{})
}

func provideCounters(db *store.DB, client *remote.Client, b *bus.Bus, logger *zap.Logger) *counters.Manager {
	return counters.NewManager(db, client, b, logger, 0)
}

func provideTyping() *router.TypingState {
	return router.NewTypingState(0)
}

func provideRouter(db *store.DB, ob *outbox.Outbox, loader *history.Loader, b *bus.Bus, logger *zap.Logger, typing *router.TypingState) *router.Router {
	return router.New(db, ob, loader, b, logger, typing)
}

// awaitConnecting blocks until the machine leaves Booting (the transport
// started dialing), so the initial-sync transition to Syncing is valid no
// matter which goroutine wins the start race.
func awaitConnecting(ctx context.Context, machine *status.Machine, b *bus.Bus) {
	ch, unsub := b.Subscribe(bus.KindStatusChanged, 16)
	defer unsub()
	for machine.Current() == status.Booting {
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, b *bus.Bus,
	transport *push.Transport, engine *intsync.Engine, loader *history.Loader,
	rt *router.Router, cm *counters.Manager, machine *status.Machine,
	logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ctx := context.Background()

			rt.Start(ctx)
			cm.Start(ctx)
			transport.Start(ctx)

			// Initial full sync and backfill run in the background; the
			// mirror serves whatever it already has in the meantime.
			go func() {
				awaitConnecting(ctx, machine, b)
				if err := machine.Transition(status.Syncing); err != nil {
					logger.Debug("skipping syncing state", zap.Error(err))
				}
				if err := engine.SyncAll(ctx, nil); err != nil {
					logger.Warn("initial sync incomplete", zap.Error(err))
				}
				if err := machine.Transition(status.Ready); err != nil {
					logger.Debug("skipping ready state", zap.Error(err))
				}
				n, err := engine.BackfillAll(ctx, loader, nil)
				if err != nil {
					logger.Warn("backfill incomplete", zap.Int("completed", n), zap.Error(err))
					return
				}
				logger.Info("backfill complete", zap.Int("chats", n))
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			engine.CancelBackfill()
			cm.Stop()
			rt.Stop()
			transport.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
