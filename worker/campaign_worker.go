package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"outreach/models"
	"outreach/telemetry"
	"outreach/utils"
)

// Verifier answers whether a mailbox would accept mail.
type Verifier interface {
	Verify(ctx context.Context, email string) utils.VerificationResult
}

type Composer interface {
	Compose(r models.Recipient) (*utils.OutboundMessage, error)
}

type RecipientResult struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Status   string `json:"status"` // sent, failed, skipped
	Outcome  string `json:"verification_outcome,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type CampaignReport struct {
	RunID      string            `json:"run_id"`
	Mailer     string            `json:"mailer"`
	Total      int               `json:"total"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Cancelled  bool              `json:"cancelled"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Results    []RecipientResult `json:"results"`
}

// CampaignWorker drives one campaign: recipients are handled strictly in
// order, one at a time. A failure on one recipient never stops the loop.
type CampaignWorker struct {
	Mailer   utils.Mailer
	Composer Composer
	// Verifier is optional; nil sends to every recipient.
	Verifier   Verifier
	Pacer      utils.Pacer
	Deliveries utils.DeliveryLog
	Progress   *utils.ProgressHub
	Metrics    *telemetry.Metrics
	Logger     *logrus.Entry

	// Recorded on the run, informational only.
	Template string
	Source   string
}

func (cw *CampaignWorker) Run(ctx context.Context, recipients []models.Recipient) (*CampaignReport, error) {
	if cw.Mailer == nil || cw.Composer == nil {
		return nil, errors.New("campaign worker needs a mailer and a composer")
	}
	cw.defaults()

	report := &CampaignReport{
		RunID:     uuid.NewString(),
		Mailer:    cw.Mailer.Name(),
		Total:     len(recipients),
		StartedAt: time.Now(),
		Results:   make([]RecipientResult, 0, len(recipients)),
	}
	log := cw.Logger.WithField("run_id", report.RunID)

	run := &models.CampaignRun{
		RunID:           report.RunID,
		Template:        cw.Template,
		Source:          cw.Source,
		Mailer:          report.Mailer,
		Status:          models.RunStatusRunning,
		StartedAt:       report.StartedAt,
		TotalRecipients: report.Total,
	}
	if err := cw.Deliveries.StartRun(ctx, run); err != nil {
		log.WithError(err).Warn("could not record campaign start")
	}

	log.WithField("recipients", report.Total).Info("Campaign started")
	cw.publish(report, "", "running", "Campaign started")

	var runErr error
	for i, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		result, err := cw.processRecipient(ctx, log, report, i, recipient)
		if err != nil {
			// only cancellation surfaces here
			runErr = err
			break
		}
		report.Results = append(report.Results, result)
		cw.record(ctx, log, report.RunID, result)
		cw.publish(report, recipient.Email, result.Status, result.Reason)
	}

	return cw.finish(ctx, log, run, report, runErr)
}

func (cw *CampaignWorker) defaults() {
	if cw.Logger == nil {
		cw.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cw.Pacer == nil {
		cw.Pacer = utils.NewIntervalPacer(0)
	}
	if cw.Deliveries == nil {
		cw.Deliveries = utils.NopDeliveryLog{}
	}
}

func (cw *CampaignWorker) processRecipient(ctx context.Context, log *logrus.Entry, report *CampaignReport, position int, r models.Recipient) (RecipientResult, error) {
	result := RecipientResult{Position: position, Name: r.Name, Email: r.Email}

	if cw.Verifier != nil {
		started := time.Now()
		verdict := cw.Verifier.Verify(ctx, r.Email)
		cw.Metrics.RecordVerification(string(verdict.Outcome), time.Since(started))
		result.Outcome = string(verdict.Outcome)

		if !verdict.Deliverable {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Status = models.DeliverySkipped
			result.Reason = verdict.Reason
			report.Skipped++
			cw.Metrics.RecordSkipped(result.Outcome)
			log.WithFields(logrus.Fields{
				"email":   r.Email,
				"outcome": verdict.Outcome,
				"reason":  verdict.Reason,
			}).Info("Skipping invalid email: " + r.Email)
			return result, nil
		}
	}

	if err := cw.Pacer.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, err
	}

	msg, err := cw.Composer.Compose(r)
	if err == nil {
		err = cw.Mailer.Send(ctx, msg)
	}
	if err != nil {
		result.Status = models.DeliveryFailed
		result.Reason = err.Error()
		report.Failed++
		cw.Metrics.RecordFailed(report.Mailer)
		log.WithFields(logrus.Fields{
			"email":      r.Email,
			"position":   position,
			"error_type": "send_failure",
		}).Errorf("Error sending email to %s: %v", r.Email, err)
		return result, nil
	}

	result.Status = models.DeliverySent
	report.Sent++
	cw.Metrics.RecordSent(report.Mailer)
	log.WithField("email", r.Email).Infof("%d/%d emails sent to %s", report.Sent, report.Total, r.Email)
	return result, nil
}

func (cw *CampaignWorker) record(ctx context.Context, log *logrus.Entry, runID string, result RecipientResult) {
	attempt := &models.DeliveryAttempt{
		RunID:               runID,
		Position:            result.Position,
		Email:               result.Email,
		Name:                result.Name,
		Status:              result.Status,
		Verified:            result.Outcome != "",
		VerificationOutcome: result.Outcome,
		Details:             result.Reason,
		AttemptedAt:         time.Now(),
	}
	if err := cw.Deliveries.RecordAttempt(ctx, attempt); err != nil {
		log.WithError(err).WithField("email", result.Email).Warn("could not record delivery attempt")
	}
}

func (cw *CampaignWorker) finish(ctx context.Context, log *logrus.Entry, run *models.CampaignRun, report *CampaignReport, runErr error) (*CampaignReport, error) {
	report.FinishedAt = time.Now()
	report.Cancelled = runErr != nil

	status := models.RunStatusCompleted
	if report.Cancelled {
		status = models.RunStatusCancelled
	}

	run.Status = status
	run.CompletedAt = &report.FinishedAt
	run.SentCount = report.Sent
	run.FailedCount = report.Failed
	run.SkippedCount = report.Skipped
	// the run is closed even when the campaign context is already cancelled
	if err := cw.Deliveries.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Warn("could not record campaign finish")
	}
	cw.Metrics.RecordRun(status)

	fields := logrus.Fields{
		"sent":     report.Sent,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
		"duration": utils.FormatDuration(report.FinishedAt.Sub(report.StartedAt)),
	}
	if runErr != nil {
		log.WithFields(fields).WithError(runErr).Warn("Campaign cancelled")
		cw.publish(report, "", status, "Campaign cancelled")
		return report, fmt.Errorf("campaign %s stopped after %d of %d recipients: %w",
			report.RunID, len(report.Results), report.Total, runErr)
	}

	log.WithFields(fields).Info("Email campaign completed")
	cw.publish(report, "", status, "Email campaign completed.")
	return report, nil
}

func (cw *CampaignWorker) publish(report *CampaignReport, email, status, message string) {
	cw.Progress.Publish(utils.ProgressEvent{
		RunID:   report.RunID,
		Email:   email,
		Status:  status,
		Message: message,
		Done:    len(report.Results),
		Total:   report.Total,
	})
}
