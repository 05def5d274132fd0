package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"kbapi/docs"
	"kbapi/internal/app"
	"kbapi/internal/config"
	"kbapi/internal/database"
	"kbapi/internal/database/migration"
	"kbapi/internal/extract"
	handlers "kbapi/internal/http/handler"
	"kbapi/internal/http/middleware"
	"kbapi/internal/logging"
	tracing "kbapi/internal/otel"
)

// @title Knowledge Base API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey UserID
// @in header
// @name X-User-ID
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, logging.Location(cfg.TimeZone))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	db, err := database.NewPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	files, err := app.OpenStorage(cfg.MinIO, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	comps, err := app.New(cfg, db, files, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize services")
	}

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register http metrics")
	}

	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    extract.MaxFileBytes + 1<<20,
	})

	server.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	server.Use(middleware.RequestID())
	server.Use(middleware.Logger(logger))
	server.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(server, handlers.Deps{
		DB:        db,
		Documents: comps.Documents,
		Approver:  comps.Orchestrator,
		Access:    comps.Access,
		Tenants:   comps.Tenants,
		Members:   comps.Tenants,
		Gatherer:  prometheus.DefaultGatherer,
	})

	server.Get("/openapi.json", func(c *fiber.Ctx) error {
		c.Type("json")
		return c.SendString(docs.SwaggerInfo.ReadDoc())
	})

	// Swagger UI with dynamic host and scheme
	server.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		if err := server.ShutdownWithTimeout(15 * time.Second); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info().Str("component", "http").Str("event", "listening").Str("addr", addr).Msg("")
	if err := server.Listen(addr); err != nil {
		logger.Error().Err(err).Msg("failed to start server")
	}

	if err := comps.Close(); err != nil {
		logger.Error().Err(err).Msg("close components")
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Error().Err(err).Msg("flush traces")
	}
}
