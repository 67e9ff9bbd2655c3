package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/db"
	apphttp "github.com/yungbote/convolab-backend/internal/http"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *apphttp.Server
	Cfg      Config
	Repos    Repos
	Services Services

	dbService    *db.Service
	clients      Clients
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	dbService, err := db.Open(log, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrate(); err != nil {
		_ = dbService.Close()
		return nil, err
	}
	theDB := dbService.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		return nil, err
	}
	handlerset := wireHandlers(theDB, log, serviceset)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       wireServer(log, cfg, handlerset, clients.MediaDir, metrics),
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		dbService:    dbService,
		clients:      clients,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the job worker pool and background collectors. It returns
// immediately.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	observability.Current().StartJobQueueCollector(ctx, a.Log, a.DB)
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

// Shutdown stops accepting requests, then lets in-flight jobs observe
// cancellation and waits for the worker pool before releasing clients.
func (a *App) Shutdown(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown failed", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Wait()
	}
	a.clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("DB close failed", "error", err)
		}
	}
	if err := observability.Current().Shutdown(ctx); err != nil {
		a.Log.Warn("Metrics shutdown failed", "error", err)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
