package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	// SampleRate defaults to 1.0 (capture all errors)
	SampleRate float64
	Debug      bool
}

// InitSentry initializes the Sentry client.
// Returns a cleanup function that flushes buffered events on shutdown.
func InitSentry(cfg SentryConfig, logger *logrus.Logger) (func(), error) {
	if cfg.DSN == "" {
		logger.Info("Sentry disabled, SENTRY_DSN not configured")
		return func() {}, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  sampleRate,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"release":     cfg.Release,
		"sample_rate": sampleRate,
	}).Info("Sentry initialized")

	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}
