package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/uc-timetable-api/internal/repository"
	"github.com/noah-isme/uc-timetable-api/internal/service"
	"github.com/noah-isme/uc-timetable-api/pkg/cache"
	"github.com/noah-isme/uc-timetable-api/pkg/config"
	"github.com/noah-isme/uc-timetable-api/pkg/database"
	"github.com/noah-isme/uc-timetable-api/pkg/events"
	"github.com/noah-isme/uc-timetable-api/pkg/jobs"
	"github.com/noah-isme/uc-timetable-api/pkg/storage"
)

// App owns every long-lived component of the timetable API.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	router    *gin.Engine
	metrics   *service.MetricsService
	timetable *service.TimetableService
	exports   *service.ExportService
	queue     *jobs.Queue

	closers []func() error
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New connects collaborators, loads the timetable and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, metrics: service.NewMetricsService()}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []service.TimetableOption{
		service.WithTimetableMetrics(a.metrics),
		service.WithEventPublisher(a.openPublisher()),
	}
	if cacheSvc := a.openCache(ctx); cacheSvc != nil {
		opts = append(opts, service.WithTimetableCache(cacheSvc))
	}
	a.timetable = service.NewTimetableService(store, logger, opts...)
	if err := a.timetable.Load(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("load timetable: %w", err)
	}

	if cfg.Exports.Enabled {
		if err := a.buildExports(); err != nil {
			a.close()
			return nil, err
		}
	}

	auth := service.NewAuthService(service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: service.TokenIssuer,
	}, logger)
	a.router = newRouter(cfg, logger, routerDeps{
		auth:      auth,
		metrics:   a.metrics,
		timetable: a.timetable,
		exports:   a.exports,
	})
	return a, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Timetable exposes the timetable service, mainly for the entrypoint.
func (a *App) Timetable() *service.TimetableService {
	return a.timetable
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	ctx, a.stop = context.WithCancel(ctx)
	if a.queue == nil {
		return
	}
	a.queue.Start(ctx)
	a.wg.Add(1)
	go a.cleanupLoop(ctx)
}

// Shutdown stops background workers, optionally saves the timetable and
// releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	if a.stop != nil {
		a.stop()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	a.wg.Wait()

	var saveErr error
	if a.cfg.Store.SaveOnShutdown && a.timetable != nil && a.timetable.Ready() {
		saveErr = a.timetable.Save(ctx)
	}
	a.close()
	return saveErr
}

func (a *App) openStore(ctx context.Context) (service.TimetableStore, error) {
	switch a.cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Info("timetable store ready", zap.String("driver", config.StoreDriverPostgres), zap.String("db", a.cfg.Database.Name))
		return repository.NewPostgresTimetableStore(db, a.metrics), nil
	case config.StoreDriverCSV:
		a.logger.Info("timetable store ready", zap.String("driver", config.StoreDriverCSV), zap.String("dir", a.cfg.Store.CSVDataDir))
		return repository.NewCSVTimetableStore(a.cfg.Store.CSVDataDir, a.cfg.Store.SectionDefaultCapacity), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", a.cfg.Store.Driver)
	}
}

// openCache returns nil when caching is disabled or Redis is unreachable;
// the service then reads straight from memory.
func (a *App) openCache(ctx context.Context) *service.CacheService {
	if !a.cfg.Cache.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, a.cfg.Redis)
	if err != nil {
		a.logger.Warn("redis unavailable, cache disabled", zap.Error(err))
		return nil
	}
	repo := repository.NewCacheRepository(client, a.cfg.Redis.Namespace, a.logger)
	a.closers = append(a.closers, repo.Close)
	return service.NewCacheService(repo, a.metrics, a.cfg.Cache.TTL, a.logger, true)
}

func (a *App) openPublisher() service.EventPublisher {
	if a.cfg.NATS.URL == "" {
		return events.NopPublisher{}
	}
	publisher, err := events.NewPublisher(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix, a.logger)
	if err != nil {
		a.logger.Warn("nats unavailable, change request events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	a.closers = append(a.closers, func() error {
		publisher.Close()
		return nil
	})
	return publisher
}

func (a *App) buildExports() error {
	files, err := storage.NewLocalStorage(a.cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("open export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(a.cfg.Exports.SignedURLSecret, a.cfg.Exports.SignedURLTTL)
	a.exports = service.NewExportService(a.timetable, files, signer, service.ExportConfig{
		APIPrefix: a.cfg.APIPrefix,
		ResultTTL: a.cfg.Exports.SignedURLTTL,
	}, a.logger)
	a.queue = jobs.NewQueue("exports", a.exports.Handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 32,
		MaxRetries: a.cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     a.logger,
		OnGiveUp:   a.exports.MarkFailed,
	})
	a.exports.UseDispatcher(a.queue)
	return nil
}

func (a *App) cleanupLoop(ctx context.Context) {
	defer a.wg.Done()
	interval := a.cfg.Exports.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.exports.Cleanup(0)
			if err != nil {
				a.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				a.logger.Info("expired exports removed", zap.Int("files", len(removed)))
			}
		}
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
