package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/api"
	"github.com/SeifEldin15/quackplan-backend/internal/api/handler"
	apimiddleware "github.com/SeifEldin15/quackplan-backend/internal/api/middleware"
	"github.com/SeifEldin15/quackplan-backend/internal/application"
	"github.com/SeifEldin15/quackplan-backend/internal/config"
	"github.com/SeifEldin15/quackplan-backend/internal/infrastructure/payment"
	"github.com/SeifEldin15/quackplan-backend/internal/infrastructure/postgres"
	redisinfra "github.com/SeifEldin15/quackplan-backend/internal/infrastructure/redis"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/clock"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
	"github.com/SeifEldin15/quackplan-backend/internal/pkg/metrics"
	"github.com/SeifEldin15/quackplan-backend/internal/worker"
)

func main() {
	// 設定読み込み
	cfg := config.Load()

	// ロガー初期化
	logger.Set(logger.NewLogger(os.Getenv("APP_ENV")))
	defer logger.Sync()

	// データベース接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	// マイグレーション実行
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションエラー", zap.Error(err))
	}

	// Redis接続
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		pingCancel()
		logger.Fatal("Redis接続エラー", zap.Error(err))
	}
	pingCancel()

	// メトリクス初期化
	m := metrics.Init()

	// リポジトリ
	txManager := postgres.NewTxManager(db)
	eventRepo := postgres.NewEventRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	holdRepo := postgres.NewHoldRepository(db)

	// Redisコラボレーター
	lockManager := redisinfra.NewLockManager(redisClient)
	availabilityCache := redisinfra.NewAvailabilityCache(redisClient)

	// 決済セッションクライアント（エンドポイント未設定ならスタブ）
	var sessionCreator application.CheckoutSessionCreator
	if cfg.Payment.CheckoutEndpoint != "" {
		sessionCreator = payment.NewClient(&cfg.Payment)
	} else {
		logger.Warn("決済エンドポイント未設定のためスタブクライアントを使用します")
		sessionCreator = payment.NewStubClient(&cfg.Payment)
	}

	// サービス
	clk := clock.NewSystem()
	bookingService := application.NewBookingService(txManager, bookingRepo, eventRepo, lockManager, availabilityCache, m)
	holdService := application.NewHoldService(txManager, holdRepo, bookingRepo, eventRepo, lockManager, clk, cfg.Hold.TTL, m)
	eventService := application.NewEventService(eventRepo, bookingRepo, holdRepo, availabilityCache, clk)
	paymentService := application.NewPaymentService(eventRepo, bookingService, holdService, sessionCreator, m)

	// 期限切れホールドリーパー起動
	reaper := worker.NewExpiredHoldReaper(holdService, cfg.Hold.ReapInterval)
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()
	go reaper.Start(reaperCtx)

	// Echoセットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	apimiddleware.SetupMiddleware(e)
	e.Use(apimiddleware.PrometheusMiddleware(m))

	// ハンドラー
	healthHandler := handler.NewHealthHandler()
	eventHandler := handler.NewEventHandler(eventService)
	bookingHandler := handler.NewBookingHandler(bookingService)
	paymentHandler := handler.NewPaymentHandler(paymentService)

	// ルーティング
	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/events", eventHandler.Create)
	v1.GET("/events", eventHandler.List)
	v1.GET("/events/:id", eventHandler.GetByID)
	v1.PATCH("/events/:id/status", eventHandler.UpdateStatus)
	v1.GET("/events/:id/availability", eventHandler.GetAvailability)
	v1.GET("/events/:id/bookings", bookingHandler.GetEventBookings)

	v1.POST("/bookings", bookingHandler.Create)
	v1.GET("/bookings", bookingHandler.GetUserBookings)
	v1.GET("/bookings/:id", bookingHandler.GetByID)
	v1.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	v1.PATCH("/bookings/:id/status", bookingHandler.UpdateStatus)

	v1.POST("/checkout", paymentHandler.Checkout)
	v1.POST("/payments/webhook", paymentHandler.Webhook)

	// メトリクスエンドポイント（Basic認証）
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), apimiddleware.MetricsBasicAuth())

	// サーバー起動
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()
	logger.Info("サーバー起動", zap.String("port", cfg.Server.Port))

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
