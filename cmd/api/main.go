package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ludoserver/internal/config"
	"ludoserver/internal/dispatch"
	"ludoserver/internal/httpapi"
	"ludoserver/internal/room"
	"ludoserver/internal/session"
	"ludoserver/internal/store"
	"ludoserver/internal/ws"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	backend := store.NewBackend(cfg, logger)
	defer backend.Close()

	if !backend.Connected() {
		logger.Warn("durable backend unreachable at startup, running on in-memory fallback")
	}

	sessions := session.NewRegistry()
	rooms := room.NewRegistry()
	hub := ws.NewHub(logger)
	disp := dispatch.New(hub, rooms, sessions, backend, cfg, logger)

	cleaner := cron.New()
	if _, err := cleaner.AddFunc("@every 5m", func() {
		purged := backend.MemoryFallback().PurgeExpiredSessions()
		if purged > 0 {
			logger.Info("purged expired in-memory sessions", zap.Int("count", purged))
		}
	}); err != nil {
		logger.Warn("failed to schedule session sweep", zap.Error(err))
	}
	cleaner.Start()
	defer cleaner.Stop()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	status := httpapi.NewStatusHandler(rooms, hub, backend)
	router.GET("/", status.Liveness)
	router.GET("/status", status.Status)
	router.GET("/ws", func(c *gin.Context) { disp.ServeHTTP(c.Writer, c.Request) })

	addr := cfg.Host + ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		logger.Info("http request",
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
