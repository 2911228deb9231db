package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-pay/custodia/internal/account"
	"github.com/custodia-pay/custodia/internal/activity"
	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/dispute"
	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/gateway"
	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/internal/logger"
	"github.com/custodia-pay/custodia/internal/notify"
	"github.com/custodia-pay/custodia/internal/redis"
	"github.com/custodia-pay/custodia/internal/router"
	"github.com/custodia-pay/custodia/internal/server"
	"github.com/custodia-pay/custodia/internal/webhook"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	srv, err := server.NewServer(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	redisClient, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	kProducer, err := kafka.NewProducer(kafka.DefaultConfig(cfg.Kafka.Brokers), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}
	defer kProducer.Close()

	notifier := notify.NewKafkaNotifier(kProducer, &log)
	gatewayClient := gateway.NewClient(&cfg.Gateway)

	accountRepo := account.NewRepository(srv.Db.Pool)
	accountService := account.NewService(accountRepo)

	escrowRepo := escrow.NewRepository(srv.Db.Pool)
	escrowService := escrow.NewService(
		escrowRepo,
		gatewayClient,
		escrow.NewRedisLocker(redisClient),
		accountService,
		notifier,
		cfg.Escrow,
		cfg.Redis.LockTTL,
	)

	disputeRepo := dispute.NewRepository(srv.Db.Pool)
	disputeService := dispute.NewService(disputeRepo, escrowService, notifier)

	activityRepo := activity.NewRepository(srv.Db.Pool)

	handlers := &router.Handlers{
		Escrow:   escrow.NewHandler(escrowService),
		Dispute:  dispute.NewHandler(disputeService),
		Account:  account.NewHandler(accountService),
		Activity: activity.NewHandler(activityRepo),
		Webhook:  webhook.NewHandler(cfg.Gateway.WebhookSecret, srv.Db.Pool),
	}

	r := router.NewRouter(srv, handlers, redisClient)
	srv.SetupHTTPServer(r)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
