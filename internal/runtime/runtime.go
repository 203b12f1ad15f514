// Package runtime constructs and tears down one scheduler process: the
// Postgres and Redis connections, the admission/broker/worker/fan-out/API/
// websocket layers, and the background goroutines that drive them. There is
// no ambient singleton (§9 Open Question): every collaborator is built here
// and threaded through explicitly, grounded on the teacher's
// cmd/common.CommandDeps construction style.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/fieldnote/scrapesched/internal/admitter"
	"github.com/fieldnote/scrapesched/internal/api"
	"github.com/fieldnote/scrapesched/internal/articlestore"
	"github.com/fieldnote/scrapesched/internal/broker"
	"github.com/fieldnote/scrapesched/internal/config"
	"github.com/fieldnote/scrapesched/internal/fanout"
	"github.com/fieldnote/scrapesched/internal/jobstore"
	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/scraper"
	"github.com/fieldnote/scrapesched/internal/worker"
	"github.com/fieldnote/scrapesched/internal/ws"
)

// Runtime holds every constructed collaborator for one process so Start and
// Shutdown can be called without reaching for package-level state.
type Runtime struct {
	cfg    config.Config
	logger logger.Logger

	db    *sqlx.DB
	redis *redis.Client

	broker   *broker.Broker
	fanout   *fanout.Hub
	pool     *worker.Pool
	health   *worker.HealthMonitor
	httpSrv  *http.Server

	fanoutCancel context.CancelFunc
	fanoutDone   chan struct{}
}

// New opens the database and Redis connections and wires every component
// named in the spec's process layout. It does not start any background
// goroutine or listener; call Start for that.
func New(cfg config.Config, log logger.Logger) (*Runtime, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	articles := articlestore.New(db)
	jobs := jobstore.New(db)
	brk := broker.New(redisClient, log)
	admit := admitter.New(articles, jobs, brk, log)
	fanoutHub := fanout.NewHub(log)

	httpScraper := scraper.NewHTTPScraper(&http.Client{Timeout: cfg.Worker.JobTimeout})
	handler := worker.NewHandler(jobs, articles, brk, httpScraper, cfg.Worker, log)
	pool, err := worker.NewPool(cfg.Worker, brk, handler.Handle, log)
	if err != nil {
		_ = db.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("construct worker pool: %w", err)
	}
	healthMonitor := worker.NewHealthMonitor(pool, cfg.Worker.HealthCheckInterval, log)

	jobsHandler := api.NewJobsHandler(admit, jobs, articles, log)
	router := api.NewRouter(jobsHandler, log)
	wsHandler := ws.NewHandler(fanoutHub, cfg.WSHeartbeatInterval, log)
	wsHandler.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	httpSrv := api.NewHTTPServer(addr, router)

	return &Runtime{
		cfg:     cfg,
		logger:  log,
		db:      db,
		redis:   redisClient,
		broker:  brk,
		fanout:  fanoutHub,
		pool:    pool,
		health:  healthMonitor,
		httpSrv: httpSrv,
	}, nil
}

// Start launches the worker pool, the health monitor, the fan-out
// subscription loop, and the HTTP listener. It returns once the listener
// goroutine has been scheduled; the returned channel carries a listener
// failure (internal/cli/schedulerd selects on it), and Shutdown stops
// everything.
func (r *Runtime) Start(ctx context.Context) (<-chan error, error) {
	if err := r.pool.Start(ctx); err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}
	r.health.Start(ctx)

	fanoutCtx, cancel := context.WithCancel(ctx)
	r.fanoutCancel = cancel
	r.fanoutDone = make(chan struct{})
	go func() {
		defer close(r.fanoutDone)
		r.fanout.Run(fanoutCtx, r.broker.Subscribe(fanoutCtx))
	}()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server listening", logger.String("addr", r.httpSrv.Addr))
		if err := r.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown drains the worker pool, stops the fan-out loop and health
// monitor, closes the HTTP server, and releases the database/Redis
// connections, grounded on the teacher's httpd command shutdown sequence
// (stop dependents before closing shared connections).
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.logger.Info("shutdown signal received")

	if err := r.httpSrv.Shutdown(ctx); err != nil {
		r.logger.Error("http server shutdown failed", logger.Error(err))
	}

	if err := r.pool.Stop(ctx); err != nil {
		r.logger.Error("worker pool drain failed", logger.Error(err))
	}
	r.health.Stop()

	if r.fanoutCancel != nil {
		r.fanoutCancel()
		select {
		case <-r.fanoutDone:
		case <-time.After(5 * time.Second):
			r.logger.Warn("fan-out loop did not stop within timeout")
		}
	}

	if err := r.redis.Close(); err != nil {
		r.logger.Error("redis close failed", logger.Error(err))
	}
	if err := r.db.Close(); err != nil {
		r.logger.Error("postgres close failed", logger.Error(err))
	}

	return nil
}
