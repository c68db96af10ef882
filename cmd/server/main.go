package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertrade/internal/config"
	"papertrade/internal/db"
	"papertrade/internal/handlers"
	"papertrade/internal/ledger"
	"papertrade/internal/oracle"
	"papertrade/internal/services"
	"papertrade/internal/store"
	"papertrade/internal/websocket"

	binance "github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	operations := store.NewOperationStore(database)
	plans := store.NewPlanStore(database)
	loans := store.NewLoanStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	ledg := ledger.New()

	var source oracle.Source
	if cfg.UseFixedOracle {
		source = oracle.NewFixed(cfg.FixedPrice, cfg.SpreadBps)
	} else {
		source = oracle.NewBinanceSource(binance.NewClient("", ""), cfg.PriceSymbol, cfg.SpreadBps)
	}
	prices := oracle.NewCached(source, cfg.PriceMaxStaleness)

	clock := services.SystemClock{}
	policy := services.LoanPolicy{
		InterestRateBps: cfg.LoanInterestRateBps,
		MaxLTVBps:       cfg.LoanMaxLTVBps,
		WarningLTVBps:   cfg.LoanWarningLTVBps,
		LiquidateLTVBps: cfg.LoanLiquidateLTVBps,
		MinInterestDays: cfg.LoanMinInterestDays,
	}

	accountService := services.NewAccountService(txRunner, accounts, operations, loans, ledg, prices, hub, logger)
	orderService := services.NewOrderService(txRunner, accounts, operations, ledg, hub, logger)
	planService := services.NewPlanService(txRunner, plans, operations, clock)
	loanService := services.NewLoanService(txRunner, accounts, operations, loans, ledg, prices, hub, clock, policy, logger)
	limitExecutor := services.NewLimitOrderExecutor(txRunner, accounts, operations, ledg, prices, hub, logger)
	dcaExecutor := services.NewDCAExecutor(txRunner, accounts, operations, plans, ledg, prices, hub, clock, logger)
	limitExecutor.SetItemTimeout(cfg.JobItemTimeout)
	dcaExecutor.SetItemTimeout(cfg.JobItemTimeout)
	loanService.SetItemTimeout(cfg.JobItemTimeout)

	scheduler := services.NewScheduler(logger)
	scheduler.Register("limit-orders", cfg.LimitTick, limitExecutor.RunTick)
	scheduler.Register("dca-plans", cfg.DCATick, dcaExecutor.RunTick)
	scheduler.Register("loan-accrual", cfg.AccrualTick, loanService.RunAccrualTick)
	scheduler.Register("loan-risk", cfg.RiskTick, loanService.RunRiskTick)
	scheduler.Start(context.Background())

	handler := handlers.New(txRunner, cfg, users, accounts, accountService, orderService, planService, loanService, prices, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("papertrade API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("shutdown error", zap.Error(err))
	}
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
