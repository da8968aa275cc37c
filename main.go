package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mitselek/esmuseum-map-app-sub006/backend"
	"github.com/mitselek/esmuseum-map-app-sub006/config"
	"github.com/mitselek/esmuseum-map-app-sub006/controller"
	"github.com/mitselek/esmuseum-map-app-sub006/db"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/middleware"
	"github.com/mitselek/esmuseum-map-app-sub006/queue"
	"github.com/mitselek/esmuseum-map-app-sub006/router"
	"github.com/mitselek/esmuseum-map-app-sub006/service"
	"github.com/mitselek/esmuseum-map-app-sub006/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.GetConfig()

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Rate limiter: shared through Redis when enabled, per process otherwise
	var limiter middleware.Limiter = middleware.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if cfg.Redis.Enabled {
		if err := db.InitRedis(cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer db.CloseRedis()
		limiter = middleware.NewRedisLimiter(db.RedisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	notificationService := util.NewNotificationService()
	notificationService.Register(eventBus)

	// Initialize services
	client := backend.NewClient(cfg.Backend)
	services, err := service.InitializeServices(client, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	dispatcher := queue.NewDispatcher(services.Sync,
		queue.WithCoolDown(cfg.Queue.CoolDown),
		queue.WithEventBus(eventBus),
	)

	// Initialize controllers
	controllers := controller.InitializeControllers(dispatcher, client.Database())

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engine := router.SetupRouter(controllers, limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("backend", cfg.Backend.URL),
			zap.String("database", cfg.Backend.Database))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Stop accepting webhooks first, then let running passes finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("Passes still running at shutdown", zap.Error(err), zap.Int("active", dispatcher.Stats().Active))
	}
	eventBus.Wait()

	logger.Info("Server exiting")
}
