package cmd

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"outreach/config"
	controller "outreach/controllers"
	"outreach/middleware"
	"outreach/models"
	"outreach/routes"
	"outreach/telemetry"
	"outreach/utils"
	"outreach/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the HTTP server. Visit /auth/google to grant Gmail send access;
the OAuth callback then runs the campaign against the configured recipients file.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg.LogConfig()
	log := componentLogger("server")

	cleanup, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry, AppName)

	composer, err := newComposer(cfg)
	if err != nil {
		return err
	}
	deliveries, runs, err := newDeliveryLog(cfg)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	hub := utils.NewProgressHub()
	loader := recipientLoader(cfg, cfg.Campaign.StrictRecipients)

	campaignController := &controller.CampaignController{
		Sessions: utils.NewGoogleSession(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI),
		LoadRecipients: func() ([]models.Recipient, error) {
			return loader.LoadFile(cfg.Campaign.RecipientsFile)
		},
		NewWorker: newWorkerFactory(cfg, workerDeps{
			composer:   composer,
			verifier:   verifier,
			deliveries: deliveries,
			progress:   hub,
			metrics:    metrics,
		}),
		Coordinator: worker.NewCoordinator(),
		StateSecret: cfg.Google.StateSecret,
		Logger:      componentLogger("campaign"),
	}
	if runs != nil {
		campaignController.Runs = runs
	}

	storage := middleware.NewRateLimitStorage(cfg.Redis)
	if storage != nil {
		defer storage.Close()
	}

	app := newApp(cfg)
	routes.SetupRoutes(app, routes.Dependencies{
		Campaign:       campaignController,
		Verification:   controller.NewVerificationController(verifier, metrics, componentLogger("verify")),
		Progress:       hub,
		Gatherer:       registry,
		TriggerLimit:   cfg.Campaign.TriggerLimit,
		LimiterStorage: storage,
		Logger:         log,
	})

	ctx := cmd.Context()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server starting on port %s", cfg.ServerPort)
		errCh <- app.Listen(":" + cfg.ServerPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down server...")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

func newApp(cfg *config.Config) *fiber.App {
	// No write timeout: the OAuth callback holds the request open for the whole campaign.
	app := fiber.New(fiber.Config{
		AppName:     AppName,
		ReadTimeout: 30 * time.Second,
	})
	app.Use(recover.New())

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	}
	app.Use(middleware.CORS(corsConfig))
	return app
}
