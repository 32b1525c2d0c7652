package main

import (
	"github.com/gofiber/fiber/v2"
)

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App, deps *Dependencies) {
	deps.HealthHandler.RegisterRoutes(app)
	deps.IterationsHandler.RegisterRoutes(app)
	deps.EventsHandler.RegisterRoutes(app)
}
