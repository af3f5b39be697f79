package cmd

import (
	"fmt"
	"net"

	"outreach/config"
	"outreach/telemetry"
	"outreach/utils"
	"outreach/worker"
)

func newVerifier(cfg *config.Config) (*utils.MailboxVerifier, error) {
	return utils.NewMailboxVerifier(net.DefaultResolver, utils.VerifierOptions{
		Sender:   cfg.Verifier.Sender,
		HeloName: cfg.Verifier.HeloName,
		Port:     cfg.Verifier.Port,
		Timeout:  cfg.Verifier.Timeout,
	})
}

func newComposer(cfg *config.Config) (*utils.Composer, error) {
	c := cfg.Campaign
	return utils.NewComposer(utils.ComposerOptions{
		Template:  c.Template,
		Subject:   c.Subject,
		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		Cc:        c.Cc,
		Signature: utils.Signature{
			SenderName:  c.FromName,
			Title:       c.SenderTitle,
			Phone:       c.Phone,
			Email:       c.FromEmail,
			CompanyName: c.CompanyName,
			CompanyURL:  c.CompanyURL,
		},
	})
}

func recipientLoader(cfg *config.Config, strict bool) utils.RecipientLoader {
	return utils.RecipientLoader{Strict: strict, DefaultName: cfg.Campaign.DefaultName}
}

// newDeliveryLog connects the delivery log database when enabled. The gorm
// log is returned separately so callers can list past runs.
func newDeliveryLog(cfg *config.Config) (utils.DeliveryLog, *utils.GormDeliveryLog, error) {
	if !cfg.Database.Enabled {
		return utils.NopDeliveryLog{}, nil, nil
	}
	db, err := config.ConnectDB(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("delivery log: %w", err)
	}
	gl := utils.NewGormDeliveryLog(db)
	return gl, gl, nil
}

type workerDeps struct {
	composer   worker.Composer
	verifier   worker.Verifier
	deliveries utils.DeliveryLog
	progress   *utils.ProgressHub
	metrics    *telemetry.Metrics
}

// newWorkerFactory returns a constructor for one campaign. Each campaign
// gets its own pacer.
func newWorkerFactory(cfg *config.Config, deps workerDeps) func(mailer utils.Mailer) *worker.CampaignWorker {
	return func(mailer utils.Mailer) *worker.CampaignWorker {
		if cfg.Campaign.DryRun {
			mailer = &utils.DryRunMailer{Logger: componentLogger("dry-run")}
		}
		cw := &worker.CampaignWorker{
			Mailer:     mailer,
			Composer:   deps.composer,
			Pacer:      utils.NewIntervalPacer(cfg.Campaign.SendDelay),
			Deliveries: deps.deliveries,
			Progress:   deps.progress,
			Metrics:    deps.metrics,
			Logger:     componentLogger("campaign"),
			Template:   cfg.Campaign.Template,
			Source:     cfg.Campaign.RecipientsFile,
		}
		if cfg.Campaign.VerifyRecipients && deps.verifier != nil {
			cw.Verifier = deps.verifier
		}
		return cw
	}
}
