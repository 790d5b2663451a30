package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"traitforge/internal/compose"
	"traitforge/internal/events"
	"traitforge/internal/metrics"
	"traitforge/internal/middleware"
	"traitforge/internal/pinning"
	"traitforge/internal/token"
	"traitforge/pkg/database"
	"traitforge/pkg/logging"
	"traitforge/pkg/utils"
)

func main() {
	cfg := utils.LoadConfig()
	logger := logging.MustNew(cfg.Server.LogLevel, cfg.Server.Development)
	defer func() { _ = logger.Sync() }()

	dbCfg := database.DefaultConfig()
	db := database.MustOpen(dbCfg, logger)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	if !cfg.Server.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), metrics.Middleware())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := events.NewHub(logger)
	router.GET("/ws", events.WSHandler(hub))
	router.GET("/events/recent", events.RecentHandler(hub))
	tcpSrv := events.NewServer(cfg.Server.EventsTCPAddr, hub, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbCfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	pinner, local := mustPinner(cfg.Pinning, logger)
	if local != nil {
		// lets the gateway URL stored on records resolve in development
		router.GET("/ipfs/:cid", serveLocalPin(local))
	}

	tokenRepo := token.NewRepo(db)
	pipeline := compose.New(
		compose.NewFetcher(cfg.Compose.AssetBaseURL, cfg.Compose.FetchTimeout, cfg.Compose.FetchParallel),
		compose.NewCompositor(cfg.Compose.CanvasWidth, cfg.Compose.CanvasHeight),
		compose.NewPublisher(pinner, cfg.Compose.PublishTimeout),
		compose.NewUpdater(tokenRepo, cfg.Compose.GatewayBaseURL, logger),
		compose.Options{TempDir: cfg.Compose.TempDir, Notifier: hub, Logger: logger},
	)

	limiter := middleware.NewRateLimiter(cfg.Server.ComposeRPS, cfg.Server.ComposeBurst, logger)

	api := router.Group("/api/v2")
	token.NewHandler(tokenRepo, logger).RegisterRoutes(api)
	compose.NewHandler(pipeline, logger).RegisterRoutes(api, limiter.Handler())

	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	stopCh := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP API server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			case <-stopCh:
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("shutting down servers")
	close(stopCh)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	if err := tcpSrv.Close(); err != nil {
		logger.Warn("tcp shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("servers stopped")
}

func mustPinner(cfg utils.PinningConfig, logger *zap.Logger) (pinning.Pinner, *pinning.LocalStore) {
	switch cfg.Provider {
	case "pinata":
		return pinning.NewPinata(cfg.APIURL, cfg.JWT, cfg.APIKey, cfg.SecretKey), nil
	case "local":
		store, err := pinning.NewLocalStore(cfg.LocalDir)
		if err != nil {
			logger.Fatal("local pin store", zap.Error(err))
		}
		logger.Warn("using local pin store; composites are not published to IPFS", zap.String("dir", cfg.LocalDir))
		return store, store
	default:
		logger.Fatal("unknown pinning provider", zap.String("provider", cfg.Provider))
		return nil, nil
	}
}

func serveLocalPin(store *pinning.LocalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := store.Open(strings.TrimSpace(c.Param("cid")))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not pinned"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
			return
		}
		defer f.Close()

		c.Header("Content-Type", "image/png")
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, f)
	}
}
