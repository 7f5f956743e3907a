package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/internal/api/handlers"
	"github.com/eruption-duration/backend/internal/cache/redis"
	"github.com/eruption-duration/backend/internal/dashboard"
	"github.com/eruption-duration/backend/internal/metrics"
	"github.com/eruption-duration/backend/internal/middleware/ratelimit"
	"github.com/eruption-duration/backend/internal/middleware/security"
	"github.com/eruption-duration/backend/internal/middleware/validation"
	"github.com/eruption-duration/backend/internal/model"
	"github.com/eruption-duration/backend/internal/storage/sqlite"
	"github.com/eruption-duration/backend/internal/volcano"
	"github.com/eruption-duration/backend/pkg/circuitbreaker"
	"github.com/eruption-duration/backend/pkg/config"
	appLogger "github.com/eruption-duration/backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting eruption duration API server")

	if err := activity.Validate(); err != nil {
		appLogger.Fatal("Invalid activity schemas", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	table, err := volcano.Load(cfg.Data.VolcanoTable)
	if err != nil {
		appLogger.Fatal("Failed to load volcano table", zap.Error(err))
	}

	store := model.NewStore(cfg.Models.Dir)
	if cfg.Models.Preload {
		ids, err := modelIDs()
		if err != nil {
			appLogger.Fatal("Failed to resolve model ids", zap.Error(err))
		}
		if err := store.Preload(ids...); err != nil {
			appLogger.Fatal("Failed to preload models", zap.Error(err))
		}
	}

	var opts []dashboard.Option

	if cfg.SQLite.Enabled {
		sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer sqliteClient.Close()

		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}

		if cfg.SQLite.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.SQLite.RetentionDays)
			n, err := sqliteClient.DeleteOlderThan(context.Background(), cutoff)
			if err != nil {
				appLogger.Warn("Failed to prune plot history", zap.Error(err))
			} else if n > 0 {
				appLogger.Info("Pruned plot history", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
			}
		}

		opts = append(opts, dashboard.WithHistory(sqliteClient))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// the cache is optional; plots are computed without it
			appLogger.Warn("Redis unavailable, plot cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			breaker := circuitbreaker.New("plot-cache", circuitbreaker.Config{
				Timeout: time.Duration(cfg.Redis.BreakerTimeoutSec) * time.Second,
				Logger:  appLogger.Named("breaker"),
			})
			opts = append(opts, dashboard.WithCache(redisClient, time.Duration(cfg.Redis.TTLSec)*time.Second, breaker))
		}
	}

	engine := dashboard.NewEngine(table, store, opts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Development:    cfg.Server.Development,
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Skip: func(c *fiber.Ctx) bool {
				switch c.Path() {
				case "/metrics", "/api/v1/health", "/api/v1/ready":
					return true
				}
				return false
			},
			Logger: appLogger.Named("ratelimit"),
		})
		defer limiter.Stop()
		app.Use(limiter.Middleware())
	}

	app.Use(validation.Middleware(validation.Config{
		PlotPaths: []string{"/api/v1/plots", "/api/v1/plots/png"},
		Logger:    appLogger.Named("validation"),
	}))

	if cfg.Metrics.Enabled {
		app.Get("/metrics", metrics.MetricsHandler())
	}

	plotHandler := handlers.NewPlotHandler(engine, handlers.ImageSize{Width: cfg.Plot.Width, Height: cfg.Plot.Height})
	catalogHandler := handlers.NewCatalogHandler(engine)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Get("/kinds", catalogHandler.GetKinds)
	api.Get("/volcanoes", catalogHandler.GetVolcanoes)

	api.Post("/plots", plotHandler.HandlePlot)
	api.Post("/plots/png", plotHandler.HandlePNG)
	api.Get("/plots/history", plotHandler.GetHistory)
	api.Get("/plots/stats", plotHandler.GetStats)
	api.Delete("/plots/cache", plotHandler.InvalidateCache)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ready",
			"volcanoes": table.Len(),
			"models":    store.Loaded(),
		})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/plots", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func modelIDs() ([]string, error) {
	ids := make([]string, 0, len(activity.Kinds()))
	for _, kind := range activity.Kinds() {
		schema, err := activity.Lookup(kind)
		if err != nil {
			return nil, err
		}
		ids = append(ids, schema.ModelID)
	}
	return ids, nil
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
