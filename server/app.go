package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediactl/config"
	"mediactl/internal/adminsvc"
	"mediactl/internal/blob"
	"mediactl/internal/db"
	"mediactl/internal/devsvc"
	"mediactl/internal/health"
	"mediactl/internal/logs"
	"mediactl/internal/middleware"
	"mediactl/internal/models"
	"mediactl/internal/repo"
	"mediactl/internal/webui"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db     *gorm.DB
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД (опционально)
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d
	}

	// ---- DB migrations (only if DB is connected) ----
	if a.db != nil {
		if err := a.db.AutoMigrate(
			&models.Account{},
			&models.Device{},
			&models.ContentItem{},
		); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
		// partial unique index на old_token руками (AutoMigrate его не умеет)
		if err := db.MigrateTokenIndexes(a.db); err != nil {
			logs.Logger.Warnf("token indexes migration: %v", err)
		}
		if err := db.Seed(a.db); err != nil {
			logs.Logger.Errorf("seed: %v", err)
		}
	}

	// 3) Blob-хранилище медиафайлов
	blobs, err := blob.NewStore(a.cfg.Storage.UploadDir)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// 4) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	// 5) Health маршруты
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db) // /healthz и /readyz
	} else {
		health.RegisterRoutes(a.Router) // только /healthz
	}

	// 6) Протокол устройств: с БД — gorm store, без БД — in-memory (dev-режим)
	var devStore devsvc.Store
	var repoStore *repo.Store
	if a.db != nil {
		repoStore = repo.NewStore(a.db)
		devStore = repoStore
	} else {
		devStore = devsvc.NewMemStore()
		logs.Logger.Warn("no database configured; using in-memory store")
	}
	svc := devsvc.NewService(devStore, a.cfg.Device.GracePeriod)
	devsvc.RegisterRoutes(a.Router, svc, blobs)

	// 7) Операторский API и web-кабинет (требуют БД)
	if repoStore != nil {
		adminHTTP := adminsvc.NewHTTP(repoStore, blobs)
		adminHTTP.RegisterRoutes(a.Router)

		web := webui.New(repoStore, svc, blobs)
		web.RegisterRoutes(a.Router)
	}

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
