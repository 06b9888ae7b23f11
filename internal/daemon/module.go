package daemon

import (
	"context"
	"time"

	"github.com/hireloop/chatsync/internal/api"
	"github.com/hireloop/chatsync/internal/backend"
	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/config"
	"github.com/hireloop/chatsync/internal/live"
	"github.com/hireloop/chatsync/internal/lock"
	"github.com/hireloop/chatsync/internal/logging"
	"github.com/hireloop/chatsync/internal/pager"
	"github.com/hireloop/chatsync/internal/status"
	"github.com/hireloop/chatsync/internal/store"
	syncengine "github.com/hireloop/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module composes the daemon from its components and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("chatsyncd",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStateMachine,
			provideStore,
			provideBackend,
			provideLiveAdapter,
			providePager,
			provideEngine,
			providePoller,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.RuntimeDir, cfg.ViewerID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring instance lock", zap.String("runtime_dir", cfg.RuntimeDir))
	return lock.Acquire(cfg.RuntimeDir)
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideStore(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(cfg.ViewerID, b, logger)
}

func provideBackend(cfg *config.Config, logger *zap.Logger) backend.API {
	return backend.NewClient(cfg.BackendURL, logger)
}

func provideLiveAdapter(cfg *config.Config, b *bus.Bus, m *status.Machine, logger *zap.Logger) *live.Adapter {
	return live.NewAdapter(cfg.PushURL, b, m, logger)
}

func providePager(st *store.Store, api backend.API, cfg *config.Config, logger *zap.Logger) *pager.Controller {
	return pager.New(st, api, cfg.PageSize, logger)
}

func provideEngine(st *store.Store, apiClient backend.API, lv *live.Adapter, pg *pager.Controller, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *syncengine.Engine {
	return syncengine.NewEngine(st, apiClient, lv, pg, b, logger, cfg.Role, cfg.PageSize)
}

func providePoller(e *syncengine.Engine, cfg *config.Config, logger *zap.Logger) *syncengine.Poller {
	return syncengine.NewPoller(e, time.Duration(cfg.PollIntervalSeconds)*time.Second, logger)
}

func provideServer(cfg *config.Config, e *syncengine.Engine, st *store.Store, pg *pager.Controller, p *syncengine.Poller, b *bus.Bus, logger *zap.Logger) *api.Server {
	return api.NewServer(cfg.Listen, e, st, pg, p, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *api.Server, lk *lock.Lock, adapter *live.Adapter, engine *syncengine.Engine, poller *syncengine.Poller, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			adapter.Start(context.Background())
			poller.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			// Initial list load; failures are retried by the poller.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				_ = engine.RefreshConversations(ctx)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			poller.Stop()
			adapter.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
