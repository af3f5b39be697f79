package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/models"
	"outreach/telemetry"
	"outreach/utils"
)

type fakeMailer struct {
	mu     sync.Mutex
	fail   map[string]error
	sent   []string
	onSend func(to string)
}

func (m *fakeMailer) Name() string { return "fake" }

func (m *fakeMailer) Send(_ context.Context, msg *utils.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onSend != nil {
		m.onSend(msg.To)
	}
	if err := m.fail[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg.To)
	return nil
}

type fakeComposer struct{}

func (fakeComposer) Compose(r models.Recipient) (*utils.OutboundMessage, error) {
	return &utils.OutboundMessage{To: r.Email}, nil
}

type fakeVerifier struct {
	undeliverable map[string]bool
	checked       []string
}

func (v *fakeVerifier) Verify(_ context.Context, email string) utils.VerificationResult {
	v.checked = append(v.checked, email)
	if v.undeliverable[email] {
		return utils.VerificationResult{
			Email:   email,
			Outcome: utils.OutcomeRejected,
			Reason:  "550 5.1.1 No such user",
		}
	}
	return utils.VerificationResult{Email: email, Deliverable: true, Outcome: utils.OutcomeDeliverable}
}

type countingPacer struct {
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

type memoryDeliveryLog struct {
	started  []*models.CampaignRun
	attempts []*models.DeliveryAttempt
	finished []*models.CampaignRun
}

func (l *memoryDeliveryLog) StartRun(_ context.Context, run *models.CampaignRun) error {
	l.started = append(l.started, run)
	return nil
}

func (l *memoryDeliveryLog) RecordAttempt(_ context.Context, a *models.DeliveryAttempt) error {
	l.attempts = append(l.attempts, a)
	return nil
}

func (l *memoryDeliveryLog) FinishRun(ctx context.Context, run *models.CampaignRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.finished = append(l.finished, run)
	return nil
}

func recipients(emails ...string) []models.Recipient {
	out := make([]models.Recipient, len(emails))
	for i, e := range emails {
		out[i] = models.Recipient{Name: "Client", Email: e}
	}
	return out
}

func TestCampaignWorker_SendFailureDoesNotStopCampaign(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mailer := &fakeMailer{fail: map[string]error{"b@example.com": errors.New("quota exceeded")}}
	deliveries := &memoryDeliveryLog{}

	cw := &CampaignWorker{
		Mailer:     mailer,
		Composer:   fakeComposer{},
		Deliveries: deliveries,
		Logger:     logrus.NewEntry(logger),
	}

	report, err := cw.Run(context.Background(), recipients("a@example.com", "b@example.com", "c@example.com"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "c@example.com"}, mailer.sent)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Cancelled)
	require.Len(t, report.Results, 3)
	assert.Equal(t, models.DeliveryFailed, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Reason, "quota exceeded")

	var sawFailure bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Error sending email to b@example.com: quota exceeded" {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "send failure is logged")
	assert.Equal(t, "Email campaign completed", hook.LastEntry().Message)

	require.Len(t, deliveries.attempts, 3)
	require.Len(t, deliveries.finished, 1)
	assert.Equal(t, models.RunStatusCompleted, deliveries.finished[0].Status)
	assert.Equal(t, 2, deliveries.finished[0].SentCount)
}

func TestCampaignWorker_SkipsUndeliverableWithoutPacing(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mailer := &fakeMailer{}
	verifier := &fakeVerifier{undeliverable: map[string]bool{"ghost@example.com": true}}
	pacer := &countingPacer{}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg, "test")

	cw := &CampaignWorker{
		Mailer:   mailer,
		Composer: fakeComposer{},
		Verifier: verifier,
		Pacer:    pacer,
		Metrics:  metrics,
		Logger:   logrus.NewEntry(logger),
	}

	report, err := cw.Run(context.Background(), recipients("a@example.com", "ghost@example.com", "c@example.com"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "ghost@example.com", "c@example.com"}, verifier.checked)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, mailer.sent)
	assert.Equal(t, 2, pacer.waits, "a skipped recipient takes no pacing slot")
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, string(utils.OutcomeRejected), report.Results[1].Outcome)

	var sawSkip bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Skipping invalid email: ghost@example.com" {
			sawSkip = true
		}
	}
	assert.True(t, sawSkip)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.EmailsSent.WithLabelValues("fake")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RecipientsSkipped.WithLabelValues(string(utils.OutcomeRejected))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CampaignRuns.WithLabelValues(models.RunStatusCompleted)))
}

func TestCampaignWorker_PacesSends(t *testing.T) {
	mailer := &fakeMailer{}
	cw := &CampaignWorker{
		Mailer:   mailer,
		Composer: fakeComposer{},
		Pacer:    utils.NewIntervalPacer(50 * time.Millisecond),
	}

	started := time.Now()
	_, err := cw.Run(context.Background(), recipients("a@example.com", "b@example.com", "c@example.com"))
	require.NoError(t, err)

	elapsed := time.Since(started)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Len(t, mailer.sent, 3)
}

func TestCampaignWorker_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailer := &fakeMailer{onSend: func(to string) {
		if to == "b@example.com" {
			cancel()
		}
	}}
	deliveries := &memoryDeliveryLog{}

	cw := &CampaignWorker{
		Mailer:     mailer,
		Composer:   fakeComposer{},
		Deliveries: deliveries,
	}

	report, err := cw.Run(ctx, recipients("a@example.com", "b@example.com", "c@example.com", "d@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, report)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 2, report.Sent)
	assert.Len(t, report.Results, 2)
	assert.NotContains(t, mailer.sent, "c@example.com")

	require.Len(t, deliveries.finished, 1, "the run is closed with a cancelled context")
	assert.Equal(t, models.RunStatusCancelled, deliveries.finished[0].Status)
}

func TestCampaignWorker_PublishesProgress(t *testing.T) {
	hub := utils.NewProgressHub()
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	cw := &CampaignWorker{
		Mailer:   &fakeMailer{},
		Composer: fakeComposer{},
		Progress: hub,
	}
	report, err := cw.Run(context.Background(), recipients("a@example.com", "b@example.com"))
	require.NoError(t, err)

	var got []utils.ProgressEvent
	for len(events) > 0 {
		got = append(got, <-events)
	}
	require.Len(t, got, 4)
	assert.Equal(t, "running", got[0].Status)
	assert.Equal(t, "a@example.com", got[1].Email)
	assert.Equal(t, 50, got[1].Percent)
	assert.Equal(t, 100, got[2].Percent)
	assert.Equal(t, models.RunStatusCompleted, got[3].Status)
	for _, ev := range got {
		assert.Equal(t, report.RunID, ev.RunID)
	}
}

func TestCampaignWorker_EmptyRecipients(t *testing.T) {
	report, err := (&CampaignWorker{Mailer: &fakeMailer{}, Composer: fakeComposer{}}).
		Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.Results)
}

func TestCampaignWorker_RequiresMailerAndComposer(t *testing.T) {
	_, err := (&CampaignWorker{Composer: fakeComposer{}}).Run(context.Background(), recipients("a@example.com"))
	assert.Error(t, err)
}
