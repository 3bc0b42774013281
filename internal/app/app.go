package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/database"
	"github.com/mx-space/journal/internal/middleware"
	"github.com/mx-space/journal/internal/modules/analysis"
	"github.com/mx-space/journal/internal/modules/backup"
	"github.com/mx-space/journal/internal/modules/remote"
	"github.com/mx-space/journal/internal/modules/remote/memory"
	"github.com/mx-space/journal/internal/modules/remote/mongostore"
	"github.com/mx-space/journal/internal/modules/remote/sqlstore"
	"github.com/mx-space/journal/internal/modules/session"
	pkgcron "github.com/mx-space/journal/internal/pkg/cron"
	"github.com/mx-space/journal/internal/pkg/fallback"
	jwtpkg "github.com/mx-space/journal/internal/pkg/jwt"
	"github.com/mx-space/journal/internal/pkg/localcache"
	pkgredis "github.com/mx-space/journal/internal/pkg/redis"
	"github.com/mx-space/journal/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	// TokenIssuer is the iss claim of every bearer token.
	TokenIssuer = "journal"
	// summaryTaskType names entry summary work in the Redis task ledger.
	summaryTaskType = "entry_summary"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	logger   *zap.Logger
	remote   remote.Store
	rc       *pkgredis.Client
	local    *fallback.Store
	tasks    *taskqueue.Service
	signer   *jwtpkg.Signer
	registry *session.Registry
	backup   *backup.Service
	sched    *pkgcron.Scheduler
	cancel   context.CancelFunc
}

// New initializes the application: config → remote → Redis → cache → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{cfg: cfg, logger: logger, cancel: cancel}
	if err := a.init(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	signer, err := jwtpkg.NewSigner(cfg.JWTSecret, TokenIssuer)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	a.signer = signer

	if a.remote, err = openRemote(ctx, cfg, a.logger); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	if cfg.Redis.Enable {
		if a.rc, err = pkgredis.Connect(ctx, cfg.Redis.URLValue()); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.tasks = taskqueue.NewService(a.rc)
	}

	cache := localcache.New(a.cacheBackend(), localcache.WithStaleness(staleness(cfg.Cache.Staleness)))

	if a.local, err = fallback.Open(cfg.Fallback.Path); err != nil {
		// Without the lower tier, loads fail when the remote is down and
		// mutations are not saved offline.
		a.logger.Warn("offline store unavailable", zap.String("path", cfg.Fallback.Path), zap.Error(err))
		a.local = nil
	}

	deps := session.Deps{
		Remote:       a.remote,
		Cache:        cache,
		Local:        a.local,
		Analyzer:     analysis.NewClient(cfg.AI, a.logger),
		Location:     cfg.Location(),
		Invalidation: cfg.Summary.Invalidation,
		MaxRetries:   cfg.Summary.MaxRetries,
		WaitTimeout:  cfg.Summary.WaitTimeout,
		Logger:       a.logger,
	}
	if a.tasks != nil {
		deps.Tracker = a.tasks.Tracker(summaryTaskType)
	}
	a.registry = session.NewRegistry(deps)

	if cfg.Backup.Enable {
		uploader, err := backup.NewS3Uploader(cfg.Backup)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		a.backup = backup.NewService(uploader, cfg.Backup.Prefix, a.logger)
	}

	a.sched = pkgcron.New(a.logger.Named("CronService"))
	if err := a.registerCronJobs(); err != nil {
		return err
	}
	if cfg.Schedule.Enable {
		a.sched.Start(ctx)
	}

	a.router = a.newRouter()
	return nil
}

func openRemote(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (remote.Store, error) {
	switch cfg.Remote.Driver {
	case config.RemoteMongo:
		store, err := mongostore.Connect(ctx, cfg.Remote.MongoURI, cfg.Remote.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.RemoteMySQL:
		db, err := database.Connect(cfg, true)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(db), nil
	default:
		logger.Warn("using in-memory remote store, data is lost on restart")
		return memory.New(), nil
	}
}

func (a *App) cacheBackend() localcache.Backend {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		if a.rc != nil {
			return localcache.NewRedisBackend(a.rc)
		}
	case config.CacheDiskv:
		return localcache.NewDiskBackend(a.cfg.Cache.Dir)
	}
	return localcache.NewMemoryBackend()
}

func staleness(overrides map[string]time.Duration) map[localcache.Collection]time.Duration {
	out := make(map[localcache.Collection]time.Duration, len(overrides))
	for name, d := range overrides {
		out[localcache.Collection(name)] = d
	}
	return out
}

func (a *App) newRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(a.logger))
	router.Use(corsMiddleware(a.cfg.AllowedOrigins, a.cfg.IsDev()))
	a.registerRoutes(router)
	return router
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Signer issues bearer tokens for the configured secret.
func (a *App) Signer() *jwtpkg.Signer { return a.signer }

// Registry returns the per-user session registry.
func (a *App) Registry() *session.Registry { return a.registry }

// Scheduler returns the cron scheduler; jobs are registered even when the
// schedule is disabled so they can be triggered by hand.
func (a *App) Scheduler() *pkgcron.Scheduler { return a.sched }

// Shutdown stops cron loops, waits for detached work and closes every store.
func (a *App) Shutdown() {
	a.cancel()
	if a.sched != nil {
		a.sched.Wait()
	}
	if a.registry != nil {
		a.registry.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.remote != nil {
		if err := a.remote.Close(ctx); err != nil {
			a.logger.Warn("close remote store", zap.Error(err))
		}
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.logger.Warn("close offline store", zap.Error(err))
		}
	}
	if a.rc != nil {
		_ = a.rc.Close()
	}
}

// Users reports the users that have open sessions or offline writes waiting.
func (a *App) Users(ctx context.Context) []string {
	seen := make(map[string]bool)
	users := a.registry.Users()
	for _, id := range users {
		seen[id] = true
	}
	if a.local != nil {
		offline, err := a.local.Users(ctx)
		if err != nil {
			a.logger.Warn("list offline users", zap.Error(err))
		}
		for _, id := range offline {
			if !seen[id] {
				seen[id] = true
				users = append(users, id)
			}
		}
	}
	return users
}
