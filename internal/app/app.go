package app

import (
	"context"
	"fmt"

	"github.com/custos-io/custos/internal/adapter/artifact"
	"github.com/custos-io/custos/internal/adapter/dump"
	"github.com/custos-io/custos/internal/adapter/mail"
	"github.com/custos-io/custos/internal/adapter/storage"
	"github.com/custos-io/custos/internal/adapter/telegram"
	"github.com/custos-io/custos/internal/config"
	"github.com/custos-io/custos/internal/dispatch"
	"github.com/custos-io/custos/internal/domain"
	"github.com/custos-io/custos/internal/infrastructure/logger"
	"github.com/custos-io/custos/internal/infrastructure/scheduler"
	"github.com/custos-io/custos/internal/usecase"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	scheduler  *scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	pipeline   *usecase.Pipeline
	schedules  map[string]string
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)
	log.Infof("Found %d database(s) configured", len(cfg.GetEnabledDatabases()))

	store, err := artifact.NewStore(cfg.Backup.ArtifactRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	dispatcher := dispatch.New(dispatch.Config{
		QueueSize:      cfg.Notification.QueueSize,
		Workers:        cfg.Notification.Workers,
		MaxAttempts:    cfg.Notification.MaxAttempts,
		BackoffBase:    cfg.Notification.BackoffBase,
		BackoffCap:     cfg.Notification.BackoffCap,
		EnqueueTimeout: cfg.Notification.EnqueueTimeout,
		AttemptTimeout: cfg.Notification.AttemptTimeout,
		DrainTimeout:   cfg.Notification.DrainTimeout,
	}, initializeTransport(cfg, log), log)

	executors, order, schedules := initializeExecutors(cfg, store, log)
	if len(executors) == 0 {
		return nil, fmt.Errorf("no usable databases found")
	}

	pipeline := usecase.NewPipeline(
		executors,
		order,
		usecase.NewRetention(store, log),
		dispatcher,
		initializeReplicator(cfg, log),
		domain.RetentionPolicy{
			KeepDays:  cfg.Retention.KeepDays,
			KeepCount: cfg.Retention.KeepCount,
		},
		cfg.Backup.Compress,
		cfg.Backup.Parallelism,
		log,
	)

	return &App{
		config:     cfg,
		logger:     log,
		scheduler:  scheduler.New(log),
		dispatcher: dispatcher,
		pipeline:   pipeline,
		schedules:  schedules,
	}, nil
}

// initializeTransport wires the delivery channels: SMTP as primary, Telegram
// as an optional best-effort mirror. With nothing configured, a no-op
// transport keeps the dispatcher harmless.
func initializeTransport(cfg *config.Config, log *logger.Logger) domain.Transport {
	var primary domain.Transport
	if cfg.Notification.Enabled {
		primary = mail.NewSMTP(cfg.Notification)
		log.Infof("✓ Email notifications enabled (%s)", cfg.Notification.SMTPHost)
	} else {
		primary = noopTransport{}
		log.Warnf("Email notifications disabled")
	}

	var secondaries []domain.Transport
	if cfg.Telegram.Enabled {
		channel, err := telegram.NewChannel(cfg.Telegram)
		if err != nil {
			log.Errorf("Failed to initialize Telegram channel: %v", err)
		} else {
			secondaries = append(secondaries, channel)
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	return dispatch.Fanout(primary, log, secondaries...)
}

func initializeReplicator(cfg *config.Config, log *logger.Logger) domain.Replicator {
	if !cfg.S3.Enabled {
		return nil
	}
	replica, err := storage.NewS3Replica(cfg.S3)
	if err != nil {
		log.Errorf("Failed to initialize S3 replication: %v", err)
		return nil
	}
	log.Infof("✓ S3 replication enabled (bucket: %s)", cfg.S3.Bucket)
	return replica
}

// initializeExecutors builds one dump runner and executor per enabled
// database, skipping any whose dump tool fails the preflight check.
func initializeExecutors(
	cfg *config.Config,
	store *artifact.Store,
	log *logger.Logger,
) (map[string]*usecase.Executor, []string, map[string]string) {
	executors := make(map[string]*usecase.Executor)
	var order []string
	schedules := make(map[string]string)

	for _, dbCfg := range cfg.GetEnabledDatabases() {
		runner := dump.NewRunner(&dbCfg)

		if err := runner.Check(context.Background()); err != nil {
			log.Errorf("Skipping %s: %v", dbCfg.Name, err)
			continue
		}

		executors[dbCfg.Name] = usecase.NewExecutor(runner, store, log)
		order = append(order, dbCfg.Name)
		schedules[dbCfg.Name] = dbCfg.Schedule
		log.Infof("✓ Scheduled backup for %s: %s", dbCfg.Name, dbCfg.Schedule)
	}

	return executors, order, schedules
}

func (a *App) Run(ctx context.Context) error {
	for database, spec := range a.schedules {
		database := database
		if err := a.scheduler.AddJob(spec, func(ctx context.Context) error {
			a.logger.Infof("=== Triggered scheduled backup for %s ===", database)
			_, err := a.pipeline.Run(ctx, domain.ScopeDatabase(database))
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule backup for %s: %w", database, err)
		}
	}

	sweep := a.config.Backup.RetentionSchedule
	if err := a.scheduler.AddJob(sweep, func(ctx context.Context) error {
		a.logger.Infof("=== Triggered retention sweep ===")
		a.pipeline.EnforceAll(ctx)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	a.logger.Infof("Scheduled retention sweep: %s", sweep)

	a.scheduler.Start()
	a.logger.Infof("Scheduler started with %d backup job(s)", len(a.schedules))

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down...")
	a.scheduler.Stop()
	a.dispatcher.Shutdown(true)

	stats := a.dispatcher.Stats()
	a.logger.Infof("Dispatcher drained: %d sent, %d failed", stats.Sent, stats.Failed)
	a.logger.Close()
}

type noopTransport struct{}

func (noopTransport) Deliver(ctx context.Context, job domain.NotificationJob) error {
	return nil
}
