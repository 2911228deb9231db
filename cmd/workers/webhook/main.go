package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-pay/custodia/internal/account"
	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/database"
	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/gateway"
	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/internal/logger"
	"github.com/custodia-pay/custodia/internal/notify"
	"github.com/custodia-pay/custodia/internal/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Webhook Worker...")

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

	consumer, err := kafka.NewConsumer(kafka.DefaultConfig(cfg.Kafka.Brokers), kafka.GroupWebhookWorker, kafka.TopicWebhookPending, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx, webhookHandler(db, redisClient, escrowService, accountService, &log)); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Webhook consumer stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Webhook Worker...")
	cancel()

	log.Info().Msg("Webhook Worker shutdown complete")
}
