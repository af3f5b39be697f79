package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreach/models"
	"outreach/utils"
	"outreach/worker"
)

// RunLister exposes recorded campaign runs.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]models.CampaignRun, error)
}

type CampaignController struct {
	Sessions       utils.SessionProvider
	LoadRecipients func() ([]models.Recipient, error)
	// NewWorker builds the campaign driver around the session's mailer.
	NewWorker   func(mailer utils.Mailer) *worker.CampaignWorker
	Coordinator *worker.Coordinator
	Runs        RunLister
	StateSecret string
	Logger      *logrus.Entry
}

// GoogleOAuth redirects to the consent screen.
func (cc *CampaignController) GoogleOAuth(c *fiber.Ctx) error {
	state := ""
	if cc.StateSecret != "" {
		token, err := utils.GenerateStateToken(cc.StateSecret)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate state", err)
		}
		state = token
	}
	return c.Redirect(cc.Sessions.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

// GoogleOAuthCallback exchanges the authorization code and runs the whole
// campaign before responding.
func (cc *CampaignController) GoogleOAuthCallback(c *fiber.Ctx) error {
	if state := c.Query("state"); state != "" {
		if _, err := utils.ParseStateToken(state, cc.StateSecret); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid state parameter", nil)
		}
	}

	code := c.Query("code")
	if code == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Authorization code is missing", nil)
	}

	ctx, release, err := cc.Coordinator.Begin(c.UserContext())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A campaign is already running", err)
	}
	defer release()

	mailer, err := cc.Sessions.Exchange(ctx, code)
	if err != nil {
		utils.LogError(cc.Logger, "auth_exchange_failure", err, map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "An error occurred during email campaign.", err)
	}

	recipients, err := cc.LoadRecipients()
	if err != nil {
		utils.LogError(cc.Logger, "recipient_load_failure", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "An error occurred during email campaign.", err)
	}

	report, err := cc.NewWorker(mailer).Run(ctx, recipients)
	if err != nil {
		if report != nil && errors.Is(err, context.Canceled) {
			return c.JSON(utils.MessageResponse("Email campaign cancelled.", report))
		}
		utils.LogError(cc.Logger, "campaign_failure", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "An error occurred during email campaign.", err)
	}

	return c.JSON(utils.MessageResponse("Email campaign completed.", report))
}

// CancelCampaign stops the running campaign after its current recipient.
func (cc *CampaignController) CancelCampaign(c *fiber.Ctx) error {
	if err := cc.Coordinator.Cancel(); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "No campaign is running", err)
	}
	cc.Logger.WithField("ip", c.IP()).Info("Campaign cancellation requested")
	return c.Status(fiber.StatusAccepted).JSON(utils.MessageResponse("Campaign cancellation requested.", nil))
}

func (cc *CampaignController) ActiveCampaign(c *fiber.Ctx) error {
	running, since := cc.Coordinator.Running()
	data := fiber.Map{"running": running}
	if running {
		data["started_at"] = since
		data["elapsed"] = utils.FormatDuration(time.Since(since))
	}
	return c.JSON(utils.SuccessResponse(data))
}

func (cc *CampaignController) ListRuns(c *fiber.Ctx) error {
	if cc.Runs == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Delivery log is not configured", nil)
	}
	runs, err := cc.Runs.RecentRuns(c.UserContext(), utils.ClampRunsLimit(c.QueryInt("limit", 10)))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign runs", err)
	}
	return c.JSON(utils.SuccessResponse(runs))
}
