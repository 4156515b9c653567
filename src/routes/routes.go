package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"matchcore/src/config"
	"matchcore/src/handlers"
	"matchcore/src/middleware"
)

func SetupRoutes(app *fiber.App, h *handlers.MarketHandler, metricsHandler http.Handler, cfg config.ServerConfig) *middleware.ServiceAvailability {
	serviceAvailability := middleware.NewServiceAvailability(cfg.MaxConcurrentRequests, cfg.MaintenanceMode)
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(cfg.RequestLogging))

	api := app.Group("/api/v1")

	if !cfg.RateLimitDisabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		api.Use(rateLimiter.Middleware())
	}

	api.Get("/markets", h.ListMarkets)
	api.Get("/orderbook/:market", h.GetOrderBook)
	api.Get("/markets/:market/orders/:id", h.GetOrderStatus)

	app.Get("/health", h.HealthCheck)
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	return serviceAvailability
}
