// controller/verification_controller.go
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"

	"outreach/telemetry"
	"outreach/utils"
)

const (
	maxBulkVerify         = 50
	bulkVerifyConcurrency = 5
)

// MailboxVerifier is the part of the verifier the HTTP surface needs.
type MailboxVerifier interface {
	Verify(ctx context.Context, email string) utils.VerificationResult
}

type VerificationController struct {
	Verifier MailboxVerifier
	Metrics  *telemetry.Metrics
	Logger   *logrus.Entry
	// Whois looks up registration data for a domain.
	Whois func(domain string) (string, error)
}

func NewVerificationController(verifier MailboxVerifier, metrics *telemetry.Metrics, logger *logrus.Entry) *VerificationController {
	return &VerificationController{
		Verifier: verifier,
		Metrics:  metrics,
		Logger:   logger,
		Whois: func(domain string) (string, error) {
			return whois.Whois(domain)
		},
	}
}

type verifyEmailRequest struct {
	Email string `validate:"required,email"`
}

// VerifyEmail probes a single mailbox. ?whois=true adds the domain's WHOIS record.
func (vc *VerificationController) VerifyEmail(c *fiber.Ctx) error {
	req := verifyEmailRequest{Email: c.Query("email")}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "A valid email address is required", err)
	}
	if !utils.IsValidEmailSyntax(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Email address is malformed", nil)
	}

	result := vc.verify(c.UserContext(), req.Email)

	if c.QueryBool("whois") && vc.Whois != nil {
		whoisInfo, err := vc.Whois(utils.ExtractDomain(req.Email))
		if err != nil {
			vc.Logger.WithError(err).WithField("email", req.Email).Warn("WHOIS lookup failed")
		} else {
			result.WHOIS = whoisInfo
		}
	}

	return c.JSON(utils.SuccessResponse(result))
}

// BulkVerify probes up to maxBulkVerify addresses with bounded concurrency.
// Results keep the request order.
func (vc *VerificationController) BulkVerify(c *fiber.Ctx) error {
	var request struct {
		Emails []string `json:"emails"`
	}
	if err := c.BodyParser(&request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if len(request.Emails) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "At least one email is required", nil)
	}
	if len(request.Emails) > maxBulkVerify {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success": false,
			"error":   "Too many emails in one request",
			"limit":   maxBulkVerify,
		})
	}

	ctx := c.UserContext()
	results := make([]utils.VerificationResult, len(request.Emails))
	sem := make(chan struct{}, bulkVerifyConcurrency)
	var wg sync.WaitGroup

	for i, email := range request.Emails {
		if !utils.IsValidEmailSyntax(email) {
			results[i] = utils.VerificationResult{
				Email:   email,
				Outcome: utils.OutcomeInvalidSyntax,
				Reason:  "invalid email syntax",
			}
			continue
		}
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = vc.verify(ctx, email)
		}(i, email)
	}
	wg.Wait()

	return c.JSON(utils.SuccessResponse(results))
}

func (vc *VerificationController) verify(ctx context.Context, email string) utils.VerificationResult {
	started := time.Now()
	result := vc.Verifier.Verify(ctx, email)
	vc.Metrics.RecordVerification(string(result.Outcome), time.Since(started))

	vc.Logger.WithFields(logrus.Fields{
		"email":   email,
		"outcome": result.Outcome,
		"took":    time.Since(started).String(),
	}).Info("Mailbox verified")
	return result
}
