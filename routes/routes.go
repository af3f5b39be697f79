package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	controller "outreach/controllers"
	"outreach/middleware"
	"outreach/utils"
)

type Dependencies struct {
	Campaign     *controller.CampaignController
	Verification *controller.VerificationController
	Progress     *utils.ProgressHub
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer       prometheus.Gatherer
	TriggerLimit   int
	LimiterStorage fiber.Storage
	Logger         *logrus.Entry
}

var requestLogFormat = "[${time}] ${status} - ${latency} ${method} ${path}\n"

func SetupAuthRoutes(app *fiber.App, deps Dependencies) {
	trigger := middleware.CampaignTriggerLimiter(deps.TriggerLimit, deps.LimiterStorage, deps.Logger)

	auth := app.Group("/auth", logger.New(logger.Config{Format: requestLogFormat}))
	auth.Get("/google", deps.Campaign.GoogleOAuth)

	// The redirect URI registered with Google points here.
	app.Get("/oauth2callback", logger.New(logger.Config{Format: requestLogFormat}), trigger, deps.Campaign.GoogleOAuthCallback)

	deps.Logger.Info("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api/v1", logger.New(logger.Config{Format: requestLogFormat}))

	verify := api.Group("/verify")
	verify.Get("/email", deps.Verification.VerifyEmail)
	verify.Post("/bulk", deps.Verification.BulkVerify)

	campaign := api.Group("/campaigns")
	campaign.Get("/active", deps.Campaign.ActiveCampaign)
	campaign.Delete("/active", deps.Campaign.CancelCampaign)
	campaign.Get("/runs", deps.Campaign.ListRuns)

	// WebSocket route for campaign progress
	app.Use("/api/v1/campaigns/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/v1/campaigns/progress", websocket.New(controller.CampaignProgressWS(deps.Progress, deps.Logger)))

	deps.Logger.Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Progress == nil {
		deps.Progress = utils.NewProgressHub()
	}

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	SetupAuthRoutes(app, deps)
	SetupAPIRoutes(app, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
