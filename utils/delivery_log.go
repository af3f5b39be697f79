package utils

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"outreach/models"
)

// DeliveryLog records what a campaign run did, one attempt per recipient.
type DeliveryLog interface {
	StartRun(ctx context.Context, run *models.CampaignRun) error
	RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	FinishRun(ctx context.Context, run *models.CampaignRun) error
}

type NopDeliveryLog struct{}

func (NopDeliveryLog) StartRun(context.Context, *models.CampaignRun) error          { return nil }
func (NopDeliveryLog) RecordAttempt(context.Context, *models.DeliveryAttempt) error { return nil }
func (NopDeliveryLog) FinishRun(context.Context, *models.CampaignRun) error         { return nil }

type GormDeliveryLog struct {
	db *gorm.DB
}

func NewGormDeliveryLog(db *gorm.DB) *GormDeliveryLog {
	return &GormDeliveryLog{db: db}
}

func (l *GormDeliveryLog) StartRun(ctx context.Context, run *models.CampaignRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if err := l.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create campaign run %s: %w", run.RunID, err)
	}
	return nil
}

func (l *GormDeliveryLog) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if attempt.CampaignRunID == 0 && attempt.RunID != "" {
		var run models.CampaignRun
		if err := l.db.WithContext(ctx).Select("id").Where("run_id = ?", attempt.RunID).First(&run).Error; err != nil {
			return fmt.Errorf("find campaign run %s: %w", attempt.RunID, err)
		}
		attempt.CampaignRunID = run.ID
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	if err := l.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("record attempt for %s: %w", attempt.Email, err)
	}
	return nil
}

func (l *GormDeliveryLog) FinishRun(ctx context.Context, run *models.CampaignRun) error {
	updates := map[string]interface{}{
		"status":           run.Status,
		"completed_at":     run.CompletedAt,
		"total_recipients": run.TotalRecipients,
		"sent_count":       run.SentCount,
		"failed_count":     run.FailedCount,
		"skipped_count":    run.SkippedCount,
	}
	err := l.db.WithContext(ctx).Model(&models.CampaignRun{}).
		Where("run_id = ?", run.RunID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("finish campaign run %s: %w", run.RunID, err)
	}
	return nil
}

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
)

// ClampRunsLimit bounds a requested page size to [1, maxRunsLimit].
func ClampRunsLimit(limit int) int {
	if limit <= 0 {
		return defaultRunsLimit
	}
	if limit > maxRunsLimit {
		return maxRunsLimit
	}
	return limit
}

// RecentRuns returns the latest runs, newest first.
func (l *GormDeliveryLog) RecentRuns(ctx context.Context, limit int) ([]models.CampaignRun, error) {
	limit = ClampRunsLimit(limit)
	var runs []models.CampaignRun
	err := l.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
