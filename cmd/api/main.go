package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/logging"
	"storefront-payments/internal/middleware"
	"storefront-payments/internal/model"
	"storefront-payments/internal/notification"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/server"
	"storefront-payments/internal/service"
	"storefront-payments/internal/worker"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if cfg.Stripe.WebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is empty; webhook deliveries will be rejected")
	}

	db, err := client.InitDBClient(&cfg.Database)
	if err != nil {
		logger.Error("database init failed", "driver", cfg.Database.Driver, "err", err)
		os.Exit(1)
	}

	sender, err := notification.NewSender(cfg.Email, logger)
	if err != nil {
		logger.Error("email sender init failed", "err", err)
		os.Exit(1)
	}

	stripeClient := client.NewStripeClient(&cfg.Stripe)
	verifier := client.NewWebhookVerifier(cfg.Stripe.WebhookSecret)

	orderRepo := repository.NewOrderRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	outboxRepo := repository.NewOutboxRepository(db, cfg.Outbox.MaxAttempts)
	membershipRepo := repository.NewMembershipRepository(db)

	paymentService := service.NewPaymentService(stripeClient, cfg.Stripe, logger)
	webhookService := service.NewWebhookService(
		db, verifier, stripeClient,
		orderRepo,
		webhookEventRepo,
		outboxRepo,
		membershipRepo,
		cfg, logger,
	)
	fulfillmentService := service.NewFulfillmentService(db, orderRepo, outboxRepo, cfg.Fulfillment, logger)
	adminService := service.NewAdminService(orderRepo, outboxRepo, membershipRepo)

	outboxWorker := worker.NewOutboxWorker(outboxRepo, cfg.Outbox, logger)
	outboxWorker.Register(model.TaskEmail, service.NewEmailDispatcher(sender, logger).Handle)
	outboxWorker.Register(model.TaskFulfillment, fulfillmentService.Handle)

	limiter := middleware.NewSlidingWindowStore(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(cfg, logger, limiter, paymentService, webhookService, adminService)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = outboxWorker.Run(workerCtx)
	}()

	logger.Info("starting HTTP server", "addr", serverAddr, "environment", cfg.Environment.Name)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	logger.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
	}

	stopWorker()
	wg.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("shutdown complete")
}
