package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"matchcore/src/config"
	"matchcore/src/feed"
	"matchcore/src/handlers"
	"matchcore/src/journal"
	"matchcore/src/logger"
	"matchcore/src/market"
	"matchcore/src/metrics"
	"matchcore/src/publish"
	"matchcore/src/routes"
)

func main() {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}

	env, err := config.Load(configDir, os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Str("dir", configDir).Msg("Failed to load configuration")
	}
	env.Set("config.dir", configDir)
	cfg, err := config.FromEnvironment(env)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log)
	defer logger.CloseLogger()
	log := logger.GetLogger()

	log.Info().Int("instruments", len(cfg.Instruments)).Msg("Initializing matching engine")

	m := metrics.New("matchcore")

	publisher, err := publish.New(cfg.Publish)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Publish.Driver).Msg("Failed to create trade publisher")
	}
	trades := publish.NewAsync(publisher, cfg.Market.QueueSize, 5*time.Second, func(code string, _ error) {
		m.PublishFailed(code)
	})

	opts := market.Options{
		QueueSize: cfg.Market.QueueSize,
		Publisher: trades,
		Metrics:   m,
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.Journal.Dir, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open command journal")
		}
		opts.Journal = j
		log.Info().Str("dir", cfg.Journal.Dir).Msg("Command journal opened")
	}

	registry := market.NewRegistry(opts)
	for _, inst := range cfg.Instruments {
		if err := registry.CreateBook(inst.Code); err != nil {
			log.Fatal().Err(err).Str("market", inst.Code).Msg("Failed to create order book")
		}
	}

	if j != nil {
		if err := registry.Replay(context.Background(), j); err != nil {
			log.Fatal().Err(err).Msg("Failed to replay command journal")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if cfg.Feed.Path != "" {
		go func() {
			runner := feed.NewRunner(registry, cfg)
			if _, err := runner.RunFile(ctx, cfg.Feed.Path); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("file", cfg.Feed.Path).Msg("Order feed failed")
			}
		}()
	}

	var app *fiber.App
	if cfg.Server.Enabled {
		app = startServer(cfg, registry, m)
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal, shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if app != nil {
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			// edge case: timeout during shutdown is acceptable
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn().
					Dur("timeout", cfg.Server.ShutdownTimeout).
					Msg("Timeout exceeded, shutting down...")
			} else {
				log.Error().
					Err(err).
					Msg("Error during shutdown")
			}
		}
	}

	registry.Close()
	if err := trades.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing trade publisher")
	}
	if j != nil {
		if err := j.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing command journal")
		}
	}

	log.Info().Msg("Shutdown complete")
}

func startServer(cfg *config.Config, registry *market.Registry, m *metrics.Metrics) *fiber.App {
	log := logger.GetLogger()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	handler := handlers.NewMarketHandler(registry, cfg, cfg.Server)
	routes.SetupRoutes(app, handler, m.Handler(), cfg.Server)

	port := ":" + cfg.Server.Port
	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			serverError <- err
		}
	}()

	// edge case: give Listen a moment so a busy port fails loudly at startup
	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	case <-time.After(100 * time.Millisecond):
		log.Info().
			Str("port", port).
			Strs("endpoints", []string{
				"GET    /api/v1/markets",
				"GET    /api/v1/orderbook/:market",
				"GET    /api/v1/markets/:market/orders/:id",
				"GET    /health",
				"GET    /metrics",
			}).
			Msg("Ops server started")
	}

	return app
}
