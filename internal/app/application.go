// Package app assembles the full server: storage, cache, write-behind
// pipeline, realtime gateway and REST API, plus their lifecycles.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/rankboard/rankboard/internal/app/cache"
	"github.com/rankboard/rankboard/internal/app/gateway"
	"github.com/rankboard/rankboard/internal/app/httpapi"
	"github.com/rankboard/rankboard/internal/app/metrics"
	"github.com/rankboard/rankboard/internal/app/presence"
	"github.com/rankboard/rankboard/internal/app/queue"
	"github.com/rankboard/rankboard/internal/app/room"
	"github.com/rankboard/rankboard/internal/app/services/boards"
	"github.com/rankboard/rankboard/internal/app/services/users"
	"github.com/rankboard/rankboard/internal/app/storage/memory"
	"github.com/rankboard/rankboard/internal/app/storage/postgres"
	"github.com/rankboard/rankboard/internal/app/system"
	"github.com/rankboard/rankboard/internal/app/writeback"
	"github.com/rankboard/rankboard/internal/config"
	"github.com/rankboard/rankboard/internal/logging"
	"github.com/rankboard/rankboard/internal/middleware"
	"github.com/rankboard/rankboard/internal/platform/migrations"
)

// Application owns every component and their start/stop order.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	server  *http.Server
	manager *system.Manager
	sched   *writeback.Scheduler

	db    *sql.DB
	redis *redis.Client
}

// New wires an application from cfg. With no database DSN it runs on the
// in-memory store; with no Redis address the cache and queue are in-memory
// too, which limits the deployment to a single node.
func New(cfg *config.Config, log *logging.Logger) (*Application, error) {
	app := &Application{cfg: cfg, log: log}

	store, err := app.buildStore()
	if err != nil {
		return nil, err
	}

	var boardCache cache.BoardStateCache
	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		boardCache = cache.NewRedisCache(app.redis, cfg.Sync.CacheTTL)
	} else {
		boardCache = cache.NewMemoryCache(cfg.Sync.CacheTTL)
	}
	states := cache.NewReadThrough(boardCache, store, log)

	manager := system.NewManager(log)

	var rec *writeback.Reconciler
	handler := func(ctx context.Context, jobID string) error {
		return rec.Reconcile(ctx, jobID)
	}
	var jobQueue interface {
		queue.Queue
		system.Service
	}
	if app.redis != nil {
		jobQueue = queue.NewRedisQueue(app.redis, "rankboard", handler, log)
	} else {
		jobQueue = queue.NewMemoryQueue(handler, log)
	}
	sched := writeback.NewScheduler(jobQueue, cfg.Sync.DebounceWindow, log)
	rec = writeback.NewReconciler(states, store, sched, log)
	sweeper := writeback.NewSweeper(sched, jobQueue, cfg.Sync.SweepInterval, log)
	manager.Register(jobQueue)
	manager.Register(sweeper)
	app.manager = manager
	app.sched = sched

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = uuid.NewString()
		log.Warn("JWT_SECRET not set, using an ephemeral secret; sessions will not survive a restart")
	}
	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log, []string{
		"/api/auth/register",
		"/api/auth/login",
		"/healthz",
		"/metrics",
		"/ws",
	})
	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)

	usersSvc := users.NewService(store, log)
	boardsSvc := boards.NewService(store, boardCache, log)

	rooms := room.NewRegistry(boardsSvc, log)
	tracker := presence.NewTracker(rooms, log)
	gw := gateway.New(rooms, tracker, states, sched, auth, cors.OriginAllowed, log)

	api := httpapi.NewHandler(usersSvc, boardsSvc, auth, log)

	router := mux.NewRouter()
	api.Register(router)
	router.HandleFunc("/ws", gw.HandleWS)
	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/healthz", app.handleHealthz).Methods(http.MethodGet)

	limiter := middleware.NewRateLimiter(50, 100, log)
	limiter.StartCleanup(time.Hour)

	chain := middleware.LoggingMiddleware(log)(
		cors.Handler(
			metrics.InstrumentHandler(
				auth.Handler(
					limiter.Handler(router),
				),
			),
		),
	)

	app.server = &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     chain,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return app, nil
}

func (a *Application) buildStore() (boards.Store, error) {
	if a.cfg.Database.DSN == "" {
		a.log.Warn("no database configured, using the in-memory store")
		return memory.New(), nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	a.db = db
	return postgres.New(db), nil
}

func (a *Application) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the background services and the HTTP server, blocking until
// the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.manager.StartAll(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.cfg.Server.Addr).Info("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server, flushes pending timers, and closes external
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)

	a.sched.Stop()
	a.manager.StopAll(shutdownCtx)

	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("error closing redis client")
		}
	}
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("error closing database connection")
		}
	}
	return err
}
