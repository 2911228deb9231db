package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-pay/custodia/internal/account"
	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/database"
	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/gateway"
	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/internal/logger"
	"github.com/custodia-pay/custodia/internal/notify"
	"github.com/custodia-pay/custodia/internal/reconcile"
	"github.com/custodia-pay/custodia/internal/redis"
	"github.com/custodia-pay/custodia/internal/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Deadline Scheduler...")

	db, err := database.New(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	redisClient, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis")
	}
	defer redisClient.Close()

	kProducer, err := kafka.NewProducer(kafka.DefaultConfig(cfg.Kafka.Brokers), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}
	defer kProducer.Close()

	notifier := notify.NewKafkaNotifier(kProducer, &log)
	gatewayClient := gateway.NewClient(&cfg.Gateway)

	escrowRepo := escrow.NewRepository(db.Pool)
	accountService := account.NewService(account.NewRepository(db.Pool))
	escrowService := escrow.NewService(
		escrowRepo,
		gatewayClient,
		escrow.NewRedisLocker(redisClient),
		accountService,
		notifier,
		cfg.Escrow,
		cfg.Redis.LockTTL,
	)

	sched := scheduler.New(escrowRepo, escrowService, notifier, cfg.Escrow, &log)
	reconciler := reconcile.New(db.Pool, gatewayClient, kProducer, &log)

	c := cron.New()
	mustSchedule(c, &log, cfg.Escrow.PaymentExpirySchedule, "payment expiry sweep", func(ctx context.Context) error {
		_, err := sched.ExpirePayments(ctx)
		return err
	})
	mustSchedule(c, &log, cfg.Escrow.ValidationScanSchedule, "validation deadline sweep", func(ctx context.Context) error {
		_, err := sched.ReleaseOverdueValidations(ctx)
		return err
	})
	mustSchedule(c, &log, cfg.Escrow.ReminderSchedule, "validation reminder sweep", func(ctx context.Context) error {
		_, err := sched.SendValidationReminders(ctx)
		return err
	})
	mustSchedule(c, &log, cfg.Escrow.ReconcileSchedule, "reconciliation run", func(ctx context.Context) error {
		return reconciler.Run(ctx, time.Now())
	})

	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Deadline Scheduler...")
	stopCtx := c.Stop()
	<-stopCtx.Done()

	log.Info().Msg("Deadline Scheduler shutdown complete")
}

func mustSchedule(c *cron.Cron, log *zerolog.Logger, spec, name string, job func(context.Context) error) {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("job", name).Str("schedule", spec).Msg("Invalid cron schedule")
	}
}
