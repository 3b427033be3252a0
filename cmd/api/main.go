package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore-payments/internal/client"
	"bookstore-payments/internal/config"
	"bookstore-payments/internal/invoice"
	"bookstore-payments/internal/model"
	"bookstore-payments/internal/notify"
	"bookstore-payments/internal/provider"
	"bookstore-payments/internal/repository"
	"bookstore-payments/internal/server"
	"bookstore-payments/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
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

	db := client.InitDB(cfg.DatabaseURL, cfg.SqlitePath)

	txSupported := !cfg.DisableTransactions && repository.DetectTransactionSupport(db)
	atomic := repository.NewAtomic(db, txSupported)
	log.Println("Transactional settlement:", txSupported)

	gateways := provider.Registry{
		model.ProviderCard:        provider.NewCardGateway(&cfg.Card),
		model.ProviderWallet:      provider.NewWalletGateway(&cfg.Wallet),
		model.ProviderMobileMoney: provider.NewMobileMoneyGateway(&cfg.MobileMoney),
	}

	bookRepo := repository.NewBookRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	contributionRepo := repository.NewContributionRepository(db)
	userRepo := repository.NewUserRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	auditRepo := repository.NewPaymentTransactionRepository(db)

	if err := bookRepo.Seed(context.Background()); err != nil {
		log.Fatal("Catalog seed error: ", err)
	}

	renderer := invoice.NewRenderer()
	notifier := notify.NewLogNotifier()

	checkoutService := service.NewCheckoutService(
		atomic, gateways, cfg.BaseURL, cfg.Currency,
		bookRepo,
		orderRepo,
		contributionRepo,
		userRepo,
		renderer,
	)
	settlementService := service.NewSettlementService(
		atomic, gateways,
		orderRepo,
		contributionRepo,
		bookRepo,
		userRepo,
		webhookEventRepo,
		auditRepo,
		renderer,
		notifier,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(checkoutService, settlementService, cfg.OperatorToken)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
