package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoflow/auth"
	"autoflow/internal/automation"
	"autoflow/internal/autoreply"
	"autoflow/internal/blockpolicy"
	"autoflow/internal/config"
	"autoflow/internal/db"
	"autoflow/internal/discovery"
	"autoflow/internal/effectors"
	"autoflow/internal/engine"
	"autoflow/internal/geofence"
	"autoflow/internal/logging"
	"autoflow/internal/mqtt"
	rediscli "autoflow/internal/redis"
	"autoflow/internal/scheduler"
	"autoflow/internal/taskqueue"
	"autoflow/internal/validation"
	"autoflow/internal/web"
	"autoflow/internal/web/api"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine, alarm worker and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			newLogger,
			newDatabase,
			newWorkflowStore,
			newRedis,
			newMQTT,
			newRegistry,
			newMetrics,
			newBlockStore,
			newDevice,
			newScanner,
			newResponder,
			newGeofences,
			newQueue,
			newScheduler,
			newEngine,
			newWorker,
			newValidator,
			newTokenIssuer,
			newWebServer,
		),
		fx.Invoke(
			runEngine,
			runWorker,
			runEnforcer,
			runWebServer,
			runDiscovery,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	startCtx, cancel := context.WithTimeout(parent, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	return app.Stop(stopCtx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.LogLevel, cfg.LogFormat, appName)
}

func newDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*db.DB, error) {
	if cfg.DBURL == "" {
		return nil, errors.New("database.url is not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.NewDB(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	logger.Info("database ready")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return database.Close()
		},
	})
	return database, nil
}

func newWorkflowStore(database *db.DB, logger *zap.Logger) *db.WorkflowStore {
	return db.NewWorkflowStore(database, logger)
}

func newRedis(lc fx.Lifecycle, cfg *config.Config) (*goredis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := rediscli.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})
	return rdb, nil
}

func newMQTT(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*mqtt.Client, error) {
	client, err := mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClient, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			client.Disconnect()
			return nil
		},
	})
	return client, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *engine.Metrics {
	return engine.NewMetrics(reg)
}

func newBlockStore(lc fx.Lifecycle, rdb *goredis.Client, cfg *config.Config, logger *zap.Logger) *blockpolicy.Store {
	store := blockpolicy.NewStore(rdb, cfg.BlockPolicy.RedisKey, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.Load(ctx)
		},
	})
	return store
}

func newDevice(client *mqtt.Client, blocks *blockpolicy.Store, cfg *config.Config, logger *zap.Logger) *effectors.Device {
	return effectors.NewDevice(client, cfg.AgentID, blocks, cfg.Effectors.ScriptTimeout, cfg.Effectors.Permitted, logger)
}

func newScanner(lc fx.Lifecycle, client *mqtt.Client, cfg *config.Config, logger *zap.Logger) *effectors.MQTTScanner {
	scanner := effectors.NewMQTTScanner(client, cfg.AgentID, logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return scanner.Close()
		},
	})
	return scanner
}

func newResponder(client *goredis.Client, device *effectors.Device, cfg *config.Config, logger *zap.Logger) *autoreply.Responder {
	ar := cfg.AutoReply
	return autoreply.NewResponder(device, device, client, autoreply.Settings{
		Enabled:         ar.Enabled,
		Message:         ar.Message,
		Cooldown:        ar.Cooldown,
		MeetingModeOnly: ar.MeetingModeOnly,
		KeyPrefix:       ar.RedisPrefix,
	}, logger)
}

func newGeofences(client *mqtt.Client, cfg *config.Config, logger *zap.Logger) *geofence.Registry {
	provider := geofence.NewMQTTWatchProvider(client, cfg.AgentID)
	return geofence.NewRegistry(provider, cfg.Limits.MaxRegistrations, cfg.Limits.MinRadius, cfg.Limits.MaxRadius, logger)
}

func newQueue(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *taskqueue.Queue {
	queue := taskqueue.NewQueue(cfg.RedisAddr, cfg.TaskQueue.MaxRetry, cfg.TaskQueue.Timeout, logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return queue.Close()
		},
	})
	return queue
}

func newScheduler(queue *taskqueue.Queue, cfg *config.Config, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(queue, cfg.Engine.Location(), logger)
}

type engineParams struct {
	fx.In

	Config    *config.Config
	Store     *db.WorkflowStore
	Redis     *goredis.Client
	Device    *effectors.Device
	Scanner   *effectors.MQTTScanner
	Responder *autoreply.Responder
	Geofences *geofence.Registry
	Scheduler *scheduler.Scheduler
	Metrics   *engine.Metrics
	Logger    *zap.Logger
}

func newEngine(p engineParams) *engine.Engine {
	ec := p.Config.Engine
	return engine.NewEngine(engine.Options{
		Store:     p.Store,
		Matcher:   engine.NewMatcher(ec.MatchWindow, ec.StateTTL, ec.Location()),
		Executor:  engine.NewExecutor(p.Device, p.Scanner, ec.MatchWindow, ec.ProbeTimeout, p.Metrics, p.Logger),
		State:     automation.NewStateTracker(p.Redis),
		Geofences: p.Geofences,
		Schedules: p.Scheduler,
		Calls:     p.Responder,
		Metrics:   p.Metrics,
		Logger:    p.Logger,
		Workers:   ec.Workers,
		QueueSize: ec.QueueSize,
	})
}

func newWorker(eng *engine.Engine, cfg *config.Config, logger *zap.Logger) *taskqueue.Worker {
	return taskqueue.NewWorker(cfg.RedisAddr, cfg.TaskQueue.Concurrency, eng, logger)
}

func newValidator(cfg *config.Config) *validation.Validator {
	return validation.New(cfg.Limits)
}

func newTokenIssuer(cfg *config.Config) (*auth.TokenIssuer, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt.secret is not configured")
	}
	return auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), nil
}

type webParams struct {
	fx.In

	Store     *db.WorkflowStore
	Database  *db.DB
	Redis     *goredis.Client
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Validator *validation.Validator
	Registry  *prometheus.Registry
	Tokens    *auth.TokenIssuer
	Logger    *zap.Logger
}

func newWebServer(p webParams) *web.WebServer {
	return web.NewWebServer(api.Dependencies{
		Store:     p.Store,
		Engine:    p.Engine,
		Validator: p.Validator,
		Schedules: p.Scheduler,
		Gatherer:  p.Registry,
		Health: func(ctx context.Context) error {
			return errors.Join(p.Database.Ping(ctx), p.Redis.Ping(ctx).Err())
		},
		Logger: p.Logger,
	}, p.Tokens)
}

func runEngine(lc fx.Lifecycle, eng *engine.Engine, sched *scheduler.Scheduler, client *mqtt.Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := eng.Start(ctx); err != nil {
				return err
			}
			sched.Start()
			return eng.SubscribeEvents(client)
		},
		OnStop: func(context.Context) error {
			_ = client.Unsubscribe(engine.EventTopic)
			sched.Stop()
			eng.Stop()
			return nil
		},
	})
}

func runWorker(lc fx.Lifecycle, worker *taskqueue.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return worker.Start()
		},
		OnStop: func(context.Context) error {
			worker.Shutdown()
			return nil
		},
	})
}

func runEnforcer(lc fx.Lifecycle, client *mqtt.Client, blocks *blockpolicy.Store, device *effectors.Device, cfg *config.Config, logger *zap.Logger) {
	monitor := effectors.NewForegroundMonitor(cfg.AgentID, cfg.Effectors.ForegroundMaxAge)
	enforcer := blockpolicy.NewEnforcer(blocks, monitor, cfg.BlockPolicy.PollInterval, device.ShowBlockScreen, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := monitor.Subscribe(client); err != nil {
				cancel()
				return err
			}
			go func() {
				defer close(done)
				enforcer.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			_ = client.Unsubscribe(monitor.Topic())
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func runWebServer(lc fx.Lifecycle, ws *web.WebServer, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ws.Start(":" + cfg.Port)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return ws.Shutdown(ctx)
		},
	})
}

func runDiscovery(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	var announcer *discovery.Announcer
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			a, err := discovery.Announce(cfg.MDNSName, logger)
			if err != nil {
				// the API stays reachable by address without mDNS
				logger.Warn("mdns announcer not started", zap.Error(err))
				return nil
			}
			announcer = a
			return nil
		},
		OnStop: func(context.Context) error {
			if announcer == nil {
				return nil
			}
			return announcer.Close()
		},
	})
}
