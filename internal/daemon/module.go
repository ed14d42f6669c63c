// Package daemon composes the sync core into a running process: it wires
// the store, queue, cache, network monitor, remote client and HTTP API
// together with fx and owns their start/stop order.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/bus"
	"github.com/arthurgc/graceline/internal/cache"
	"github.com/arthurgc/graceline/internal/chat"
	"github.com/arthurgc/graceline/internal/config"
	"github.com/arthurgc/graceline/internal/home"
	"github.com/arthurgc/graceline/internal/httpapi"
	"github.com/arthurgc/graceline/internal/lock"
	"github.com/arthurgc/graceline/internal/logging"
	"github.com/arthurgc/graceline/internal/netmon"
	"github.com/arthurgc/graceline/internal/queue"
	"github.com/arthurgc/graceline/internal/remote"
	"github.com/arthurgc/graceline/internal/store"
	intsync "github.com/arthurgc/graceline/internal/sync"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideKeys,
			provideMonitor,
			provideRemote,
			provideQueue,
			provideCache,
			provideChatService,
			provideOrchestrator,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger() (*zap.Logger, error) {
	if err := home.EnsureDirs(); err != nil {
		return nil, err
	}
	return logging.New(home.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("dir", home.BaseDir()))
	l, err := lock.Acquire(home.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(logger *zap.Logger) (*store.DB, error) {
	dbPath := home.DBPath()
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

func provideKeys() store.Keys {
	return store.DefaultKeys()
}

func provideMonitor(p Params, b *bus.Bus, logger *zap.Logger) *netmon.Monitor {
	return netmon.New(netmon.Options{
		ProbeURL:      p.Config.Probe.URL,
		ProbeTimeout:  p.Config.ProbeTimeout(),
		ProbeInterval: p.Config.ProbeInterval(),
	}, b, logger)
}

func provideRemote(p Params) *remote.Client {
	return remote.NewClient(p.Config.Remote.BaseURL, p.Config.Remote.APIToken, p.Config.RemoteTimeout())
}

func provideQueue(p Params, db *store.DB, keys store.Keys, client *remote.Client, b *bus.Bus, logger *zap.Logger) *queue.Queue {
	return queue.New(db, keys, client, b, logger, p.Config.Queue.MaxRetries)
}

func provideCache(p Params, db *store.DB, keys store.Keys, logger *zap.Logger) *cache.Cache {
	return cache.New(db, keys, p.Config.CacheTTL(), logger)
}

func provideChatService(monitor *netmon.Monitor, c *cache.Cache, q *queue.Queue, client *remote.Client, logger *zap.Logger) *chat.Service {
	return chat.NewService(monitor, c, q, client, logger)
}

func provideOrchestrator(monitor *netmon.Monitor, q *queue.Queue, svc *chat.Service, db *store.DB, keys store.Keys, b *bus.Bus, logger *zap.Logger) *intsync.Orchestrator {
	return intsync.New(monitor, q, svc, db, keys, b, logger)
}

func provideServer(p Params, svc *chat.Service, q *queue.Queue, monitor *netmon.Monitor, orch *intsync.Orchestrator, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(p.Config.ListenAddr, svc, q, monitor, orch, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *httpapi.Server, lk *lock.Lock, monitor *netmon.Monitor, orch *intsync.Orchestrator, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Reclaim entries stranded mid-delivery by a previous crash,
			// then begin watching connectivity.
			if err := orch.Start(context.Background()); err != nil {
				return err
			}
			monitor.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			monitor.Stop()
			orch.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
