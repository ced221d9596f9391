package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantlab/papersim/internal/algo"
	"github.com/quantlab/papersim/internal/bus"
	"github.com/quantlab/papersim/internal/config"
	"github.com/quantlab/papersim/internal/domain"
	"github.com/quantlab/papersim/internal/engine"
	"github.com/quantlab/papersim/internal/handler"
	"github.com/quantlab/papersim/internal/risk"
	"github.com/quantlab/papersim/internal/service"
	"github.com/quantlab/papersim/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Instantiate stores.
	accountStore := store.NewAccountStore()
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	fillStore := store.NewFillStore()
	positionStore := store.NewPositionStore()
	algoStore := store.NewAlgoStore()

	// Domain.
	instruments := domain.NewInstrumentRegistry()

	// Event bus with bounded replay store.
	eventBus := bus.New(cfg.EventStoreCapacity, logger)
	eventBus.Use(bus.Logging(logger))

	// Engine.
	books := engine.NewBookManager()
	market := engine.NewMarketData(books)

	limits := risk.DefaultLimits()
	limits.FeeRateBps = cfg.FeeRateBps
	gate := risk.NewGate(limits, risk.DefaultRules(), accountStore, positionStore, instruments, market, logger)

	mm := engine.NewMarketMaker(engine.QuoteMode(cfg.QuoteMode), cfg.SpreadBps, cfg.VolMultiplier, cfg.QuoteSize, logger)
	matcher := engine.NewMatcher(books, mm, gate, accountStore, orderStore, tradeStore, fillStore, positionStore, eventBus, cfg.FeeRateBps, logger)
	expiryMgr := engine.NewExpiryManager(cfg.ExpirationInterval, matcher)

	// Algorithmic scheduler on the real-time clock. A zero seed takes
	// jitter entropy from the wall clock.
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	scheduler := algo.NewScheduler(
		algoStore,
		orderStore,
		gate,
		market,
		matcher,
		algo.TimerClock{},
		eventBus,
		cfg.AlgoTickInterval,
		seed,
		logger,
	)

	// Services.
	accountSvc := service.NewAccountService(accountStore, positionStore, market)
	orderSvc := service.NewOrderService(matcher, expiryMgr, accountStore, orderStore, fillStore, instruments)
	algoSvc := service.NewAlgoService(scheduler, algoStore, orderStore, accountStore, instruments)
	marketSvc := service.NewMarketService(books, market, matcher, tradeStore, instruments)

	// Router.
	router := handler.NewRouter(accountSvc, orderSvc, algoSvc, marketSvc, eventBus, logger)

	// Start expiration goroutine with cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go expiryMgr.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel the expiry goroutine,
	// then drain the event bus.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	eventBus.Close()

	logger.Info("server stopped")
}
