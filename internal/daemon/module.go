package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/multichat/internal/account"
	"github.com/matheus3301/multichat/internal/api"
	"github.com/matheus3301/multichat/internal/bus"
	"github.com/matheus3301/multichat/internal/chat"
	"github.com/matheus3301/multichat/internal/config"
	"github.com/matheus3301/multichat/internal/dispatch"
	"github.com/matheus3301/multichat/internal/lock"
	"github.com/matheus3301/multichat/internal/logging"
	"github.com/matheus3301/multichat/internal/profile"
	"github.com/matheus3301/multichat/internal/remote"
	"github.com/matheus3301/multichat/internal/store"
	intsync "github.com/matheus3301/multichat/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Timing      config.Timing
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideFeed,
			provideRemote,
			provideEngine,
			provideManager,
			provideDispatcher,
			provideIndex,
			provideService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
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

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
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

func provideFeed() *remote.Feed {
	return remote.NewFeed()
}

func provideRemote(db *store.DB, feed *remote.Feed, logger *zap.Logger) *remote.Remote {
	return remote.New(db, feed, logger)
}

func provideEngine(r *remote.Remote, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(r, b, logger)
}

func provideManager(p Params, r *remote.Remote, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *account.Manager {
	timing := account.DefaultTiming()
	if d := p.Timing.ConfirmMin(); d > 0 {
		timing.ConfirmMin = d
	}
	if d := p.Timing.ConfirmMax(); d > 0 {
		timing.ConfirmMax = d
	}
	if d := p.Timing.Countdown(); d > 0 {
		timing.Countdown = d
	}
	return account.NewManager(r, engine, b, timing, logger)
}

func provideDispatcher(p Params, r *remote.Remote, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(r, engine, b, logger, p.Timing.DeliveryDelay())
}

func provideIndex(engine *intsync.Engine, r *remote.Remote, logger *zap.Logger) *chat.Index {
	return chat.NewIndex(engine, r, logger)
}

func provideService(engine *intsync.Engine, m *account.Manager, d *dispatch.Dispatcher, ix *chat.Index, b *bus.Bus) *api.Service {
	return api.NewService(engine, m, d, ix, b)
}

func registerLifecycle(lc fx.Lifecycle, _ *api.Service, lk *lock.Lock, db *store.DB, feed *remote.Feed, engine *intsync.Engine, manager *account.Manager, dispatcher *dispatch.Dispatcher, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := engine.Load(ctx); err != nil {
				return err
			}
			engine.Start(context.Background())
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			dispatcher.Stop()
			manager.Close()
			engine.Stop()
			feed.Close()
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
