package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/joho/godotenv"

	"luckydraw/internal/config"
	"luckydraw/internal/handlers"
	"luckydraw/internal/middleware"
	"luckydraw/internal/services"
	"luckydraw/internal/store"
)

func main() {
	defer logger.Init("luckydraw", true, false, io.Discard).Close()

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	// 1. Load configuration and the prize table.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	table, err := config.LoadPrizeTable(cfg.PrizesFile)
	if err != nil {
		logger.Fatalf("Failed to load prize table: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the key-value store holding winners and probabilities.
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer st.Close()

	// 3. Initialize the engine, the celebration hub and the Lottery Service.
	engine := services.NewDrawEngine(table.Prizes, nil)
	defaults := services.DefaultsFor(table.Prizes, table.Probabilities)
	for _, w := range engine.CheckProbabilities(defaults) {
		logger.Warningf("default probabilities: %s", w)
	}

	hub := handlers.NewWebSocketHub()
	defer hub.Close()

	lotteryService := services.NewLotteryService(engine, st,
		services.WithBroadcaster(hub),
		services.WithDefaultProbabilities(defaults),
		services.WithTimeLayout(cfg.TimeLayout),
	)

	// 4. Initialize the HTTP Handler and the Gin router.
	httpHandler := handlers.NewHTTPHandler(lotteryService, hub, cfg.DrawDelay, cfg.OperatorSecret)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 5. Register public routes (before middleware)
	httpHandler.RegisterPublicRoutes(r)

	// 6. Group routes that require tenant identification and apply middleware
	tenantRoutes := r.Group("/")
	tenantRoutes.Use(middleware.TenantMiddleware())
	httpHandler.RegisterTenantRoutes(tenantRoutes)

	// 7. Start the background janitor to clean up inactive sessions
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n := lotteryService.CleanUpInactiveSessions(cfg.SessionIdle)
				logger.Infof("Performed cleanup of inactive sessions, evicted %d.", n)
			case <-ctx.Done():
				return
			}
		}
	}()

	// 8. Run the server until interrupted
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown: %v", err)
		}
	}()

	logger.Infof("Server starting on http://localhost:%s (store: %s, %d prizes)", cfg.Port, cfg.StoreDriver, engine.TotalCount())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to run server: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreFile:
		return store.NewFileStore(cfg.DataDir)
	case config.StoreRedis:
		return store.NewRedisStore(ctx, store.RedisOptions{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
	case config.StorePostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
