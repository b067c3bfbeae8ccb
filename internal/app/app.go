// Package app wires configuration, infrastructure and the resolution engine together
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/entity"
	"github.com/Ramsey-B/clover/internal/repositories/mergehistory"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/routes"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	depTracing  = "tracing"
	depPostgres = "postgres"
	depRedis    = "redis"
	depMemgraph = "memgraph"
	depKafka    = "kafka"
	depEngine   = "engine"
	depHTTP     = "http"
)

// App owns every long-lived dependency of the service
type App struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	checker *health.Checker

	db       database.DB
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer
	engine   *resolution.Engine
	server   *http.Server

	shutdownTracing func(context.Context) error

	// seed is loaded into the memory store when STORE_BACKEND is memory
	seed []*models.Entity
}

// New creates an app. Nothing is started until Start.
func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(cfg.Version),
	}
}

// WithSeed preloads entities into the in-memory store
func (a *App) WithSeed(entities ...*models.Entity) *App {
	a.seed = append(a.seed, entities...)
	return a
}

// Engine returns the engine once started
func (a *App) Engine() *resolution.Engine {
	return a.engine
}

// Start brings up every enabled dependency. serveHTTP adds the HTTP server on top.
func (a *App) Start(ctx context.Context, serveHTTP bool) error {
	a.register(serveHTTP)
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.checker.SetReady(true)
	return nil
}

// Stop tears dependencies down in reverse order
func (a *App) Stop(ctx context.Context) error {
	a.checker.SetReady(false)
	return a.startup.Stop(ctx)
}

// Run starts the service and blocks until ctx is done
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx, true); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return a.Stop(stopCtx)
}

func (a *App) register(serveHTTP bool) {
	cfg := a.cfg
	var engineDeps []string

	a.startup.AddDependency(&startup.Func{
		Name:    depTracing,
		OnStart: a.startTracing,
		OnStop: func(ctx context.Context) error {
			return a.shutdownTracing(ctx)
		},
	})

	if cfg.StoreBackend == "postgres" {
		engineDeps = append(engineDeps, depPostgres)
		a.startup.AddDependency(&startup.Func{
			Name:    depPostgres,
			OnStart: a.startPostgres,
			OnStop: func(context.Context) error {
				return a.db.Close()
			},
		})
	}

	if cfg.RedisEnabled {
		engineDeps = append(engineDeps, depRedis)
		a.startup.AddDependency(&startup.Func{
			Name: depRedis,
			OnStart: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, cfg.Redis(), a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				a.checker.AddCheck(depRedis, client)
				return nil
			},
			OnStop: func(context.Context) error {
				return a.redis.Close()
			},
		})
	}

	if cfg.GraphDBEnabled {
		engineDeps = append(engineDeps, depMemgraph)
		a.startup.AddDependency(&startup.Func{
			Name: depMemgraph,
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				a.checker.AddCheck(depMemgraph, health.PingFunc(client.VerifyConnectivity))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return a.graph.Close(ctx)
			},
		})
	}

	if cfg.KafkaEnabled {
		engineDeps = append(engineDeps, depKafka)
		a.startup.AddDependency(&startup.Func{
			Name: depKafka,
			OnStart: func(context.Context) error {
				a.producer = kafka.NewProducer(cfg.Kafka(), a.logger)
				return nil
			},
			OnStop: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	a.startup.AddDependency(&startup.Func{
		Name:     depEngine,
		Requires: append([]string{depTracing}, engineDeps...),
		OnStart:  a.startEngine,
	})

	if serveHTTP {
		a.startup.AddDependency(&startup.Func{
			Name:     depHTTP,
			Requires: []string{depEngine},
			OnStart:  a.startHTTP,
			OnStop: func(ctx context.Context) error {
				return a.server.Shutdown(ctx)
			},
		})
	}
}

func (a *App) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, a.cfg.Tracing())
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *App) startPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, a.cfg.Database(), a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, a.cfg.Migration())
	if err := migrations.MigratePostgres(a.cfg.DatabaseName, db.SQL()); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate %s: %w", a.cfg.DatabaseName, err)
	}

	a.db = db
	a.checker.AddCheck(depPostgres, health.PingFunc(db.PingContext))
	return nil
}

// entityStore picks the backing store and wraps it in the circuit breaker
func (a *App) entityStore() store.Store {
	var backend store.Store
	if a.db != nil {
		backend = entity.NewRepository(a.db, a.logger)
	} else {
		backend = store.NewMemory(a.seed...)
	}
	return store.NewBreaker(backend, a.cfg.Breaker(), a.logger)
}

func (a *App) startEngine(ctx context.Context) error {
	rc, err := a.cfg.Resolution()
	if err != nil {
		return err
	}

	bus := events.NewBus(a.logger)
	opts := []resolution.Option{resolution.WithEvents(bus)}
	if a.redis != nil {
		opts = append(opts,
			resolution.WithGuard(redis.NewSessionGuard(redis.NewLocker(a.redis, a.cfg.RedisLockKeyPrefix))),
			resolution.WithHistorySink(mergehistory.NewRepository(a.redis.Redis(), a.cfg.RedisHistoryKey, a.logger)),
		)
	}

	engine, err := resolution.NewEngine(a.entityStore(), rc, a.logger, opts...)
	if err != nil {
		return err
	}
	if err := engine.LoadHistory(ctx); err != nil {
		return err
	}

	if a.producer != nil {
		events.NewKafkaPublisher(bus, a.producer, a.logger)
	}
	if a.graph != nil {
		graph.NewProjector(a.graph, a.logger).Subscribe(bus)
	}

	a.engine = engine
	return nil
}

func (a *App) startHTTP(ctx context.Context) error {
	cfg := a.cfg
	e := routes.NewServer(routes.ServerConfig{
		ServiceName: cfg.AppName,
		Tracing:     cfg.TraceExporter != "none",
	}, a.engine, a.checker, a.logger)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		a.logger.WithContext(ctx).Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithContext(ctx).WithError(err).Error("HTTP server stopped")
		}
	}()
	return nil
}
