package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "hawkinsfarm/docs"
	"hawkinsfarm/internal/caching"
	"hawkinsfarm/internal/config"
	"hawkinsfarm/internal/handlers"
	"hawkinsfarm/internal/jobs"
	"hawkinsfarm/internal/middleware"
	"hawkinsfarm/internal/repositories"
	"hawkinsfarm/internal/services"
	"hawkinsfarm/pkg/database"
	"hawkinsfarm/pkg/metrics"
)

// @title        Hawkin's Farm Marketplace API
// @version      1.0
// @description  Produce marketplace: farmer listings, multi-farmer order placement with all-or-nothing stock reservation.
// @BasePath     /v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Database
	pool, err := database.NewPool(ctx, cfg.Database.URL, database.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	database.DB = pool
	defer database.ClosePool()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// Redis backs the caches, idempotency keys and the task queue.
	redisClient, err := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to configure Redis: %v", err)
	}
	cacheSvc := caching.NewRedisCacheService(redisClient)
	defer cacheSvc.Close()

	ro := redisClient.Options()
	redisOpt := asynq.RedisClientOpt{Addr: ro.Addr, Username: ro.Username, Password: ro.Password, DB: ro.DB, TLSConfig: ro.TLSConfig}
	taskClient := asynq.NewClient(redisOpt)
	defer taskClient.Close()

	minioSvc, err := services.NewMinioService(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}

	var jwks *keyfunc.JWKS
	if cfg.Auth.JWKSURL != "" {
		jwks, err = middleware.FetchJWKS(cfg.Auth.JWKSURL)
		if err != nil {
			log.Fatalf("Failed to initialize JWKS: %v", err)
		}
		defer jwks.EndBackground()
	}

	serverMetrics := metrics.NewServerMetrics(prometheus.DefaultRegisterer)
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	productRepo := repositories.NewProductRepo(pool)
	orderRepo := repositories.NewOrderRepo(pool)

	// Services
	authSvc := services.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration)
	productSvc := services.NewProductService(productRepo, minioSvc, cacheSvc, services.ProductServiceConfig{
		ImageBucket:    cfg.Minio.Bucket,
		MarketplaceTTL: 2 * cfg.Jobs.MarketplaceRefresh.Duration,
	})
	orderSvc := services.NewOrderService(productRepo, orderRepo, services.OrderServiceConfig{
		PlacementTimeout:    cfg.Orders.PlacementTimeout.Duration,
		CompensationTimeout: cfg.Orders.CompensationTimeout.Duration,
		IdempotencyTTL:      cfg.Orders.IdempotencyTTL.Duration,
		Notifier:            jobs.NewTaskNotifier(taskClient),
		Idempotency:         cacheSvc,
		Metrics:             orderMetrics,
	})

	// Background work
	worker := jobs.NewWorker(redisOpt, cfg.Jobs.WorkerConcurrency)
	if err := worker.Start(jobs.NewServeMux(jobs.NewOrderPlacedHandler(userRepo))); err != nil {
		log.Fatalf("Failed to start task worker: %v", err)
	}

	scheduler, err := jobs.NewJobScheduler(productSvc, jobs.SchedulerConfig{
		MarketplaceRefresh: cfg.Jobs.MarketplaceRefresh.Duration,
		LowStockInterval:   cfg.Jobs.LowStockInterval.Duration,
		LowStockThreshold:  cfg.Jobs.LowStockThreshold,
	})
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	scheduler.Start()

	// Handlers
	authHandlers := handlers.NewAuthHandlers(authSvc)
	productHandlers := handlers.NewProductHandlers(productSvc)
	orderHandlers := handlers.NewOrderHandlers(orderSvc)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc, handlers.PingFunc(func(ctx context.Context) error {
		_, err := minioSvc.BucketExists(ctx, cfg.Minio.Bucket)
		return err
	}))

	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())
	e.Use(serverMetrics.Middleware())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/health/detailed", healthHandlers.DetailedHealthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := versionMiddleware.VersionRoute(e, "v1")
	authenticated := middleware.JWT(cfg.Auth.JWTSecret, jwks)
	manageProducts := middleware.RequireOperation(services.OpManageProducts)

	auth := v1.Group("/auth")
	auth.POST("/register", authHandlers.Register)
	auth.POST("/login", authHandlers.Login)
	v1.GET("/me", authHandlers.Me, authenticated)

	// Product routes
	v1.GET("/products", productHandlers.ListMarketplace)
	v1.GET("/products/mine", productHandlers.ListMine, authenticated, manageProducts)
	v1.GET("/products/:id", productHandlers.GetProduct)
	v1.POST("/products/batch", productHandlers.BatchGetProducts)
	v1.POST("/products", productHandlers.CreateProduct, authenticated, manageProducts)
	v1.PUT("/products/:id", productHandlers.UpdateProduct, authenticated, manageProducts)
	v1.DELETE("/products/:id", productHandlers.DeleteProduct, authenticated, manageProducts)
	v1.POST("/products/:id/image", productHandlers.UploadImage, authenticated, manageProducts)

	// Order routes
	orders := v1.Group("/orders", authenticated)
	orders.POST("", orderHandlers.PlaceOrder, middleware.RequireOperation(services.OpPlaceOrder))
	orders.GET("/history", orderHandlers.ListHistory)
	orders.GET("/farmer", orderHandlers.ListFarmerOrders, middleware.RequireOperation(services.OpFarmerIncoming))
	orders.GET("/:id", orderHandlers.GetOrder)
	orders.PUT("/:id/status", orderHandlers.UpdateStatus, middleware.RequireOperation(services.OpUpdateOrderStatus))
	orders.GET("/:id/receipt", orderHandlers.Receipt)

	go func() {
		log.Printf("Hawkin's Farm server v%s starting on port %d", handlers.Version, cfg.Server.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Printf("Scheduler shutdown: %v", err)
	}
	worker.Shutdown()
}
