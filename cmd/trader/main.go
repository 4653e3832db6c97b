package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"banknifty/internal/client/upstox"
	"banknifty/internal/config"
	cronrunner "banknifty/internal/cron"
	"banknifty/internal/db"
	"banknifty/internal/engine"
	"banknifty/internal/handler"
	"banknifty/internal/logger"
	"banknifty/internal/quota"
	"banknifty/internal/reconciler"
	gormrepository "banknifty/internal/repository/gorm"
	"banknifty/internal/service"
)

func main() {
	cfgPath := os.Getenv("BN_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BN_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	location, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.App.Timezone), zap.Error(err))
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	brokerHTTP := &http.Client{Timeout: cfg.Broker.Timeout}
	broker := upstox.NewClient(upstox.ClientOptions{
		BaseURL:       cfg.Broker.BaseURL,
		OrderBaseURL:  cfg.Broker.OrderBaseURL,
		InstrumentKey: cfg.Broker.InstrumentKey,
		AccessToken:   cfg.Broker.AccessToken,
		HTTPClient:    brokerHTTP,
	})
	feed := upstox.NewFeed(upstox.FeedOptions{
		URL:                  cfg.Feed.URL,
		AccessToken:          cfg.Broker.AccessToken,
		InstrumentKey:        cfg.Broker.InstrumentKey,
		ReconnectBase:        cfg.Feed.ReconnectBase,
		ReconnectMax:         cfg.Feed.ReconnectMax,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		Logger:               logger,
	})

	tracker := quota.New(store, location)
	notifier := engine.NewNotifier()
	riskEngine := engine.New(cfg.Strategy, store, broker, tracker, notifier, logger)
	orderReconciler := reconciler.New(store, notifier, logger)
	tradeService := &service.TradeService{Repo: store, Location: location, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	tradingHandler := &handler.TradingHandler{
		Engine: riskEngine,
		Trades: tradeService,
		Feed:   feed,
	}
	tradingHandler.Register(router)
	webhookHandler := &handler.WebhookHandler{
		Reconciler: orderReconciler,
		Logger:     logger,
	}
	webhookHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx, location)
		if _, err := cronRunner.Add(cfg.Cron.MarketOpen, riskEngine.StartTradingDay); err != nil {
			logger.Fatal("cron register market open failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.SquareOff, riskEngine.SquareOffDay); err != nil {
			logger.Fatal("cron register square off failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	ticks := make(chan upstox.Tick, cfg.Feed.TickBuffer)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("market data feed stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := riskEngine.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("risk engine stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
