package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/gateway"
	"github.com/safar/storefront/internal/httpapi"
	"github.com/safar/storefront/internal/logging"
	"github.com/safar/storefront/internal/pricing"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Gateway.KeySecret == "" {
		logger.Fatal("GATEWAY_KEY_SECRET is required")
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		logger.Fatal("Connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database successfully")

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("Publishing events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Close event publisher", zap.Error(err))
		}
	}()

	svc := checkout.NewService(db, gateway.NewClient(cfg.Gateway), publisher, logger, checkout.Config{
		Pricing: pricing.Policy{
			ShippingFlatFee:       cfg.Pricing.ShippingFlatFee,
			ShippingFreeThreshold: cfg.Pricing.ShippingFreeThreshold,
			TaxRate:               cfg.Pricing.TaxRate,
			DiscountCap:           cfg.Pricing.DiscountCap,
		},
		Currency:        cfg.Gateway.Currency,
		PublicKeyID:     cfg.Gateway.KeyID,
		SignatureSecret: cfg.Gateway.KeySecret,
		ReserveStock:    cfg.Orders.ReserveStock,
	})

	handler := httpapi.NewHandler(svc, httpapi.NewSQLStore(db), logger, cfg.App.Production())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}
