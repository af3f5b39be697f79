package models

import (
	"time"

	"gorm.io/gorm"
)

// Delivery statuses recorded per recipient
const (
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// CampaignRun is one execution of the recipient loop
type CampaignRun struct {
	gorm.Model
	RunID    string `gorm:"not null;uniqueIndex" json:"run_id"`
	Template string `json:"template"`
	Source   string `json:"source"` // recipients file
	Mailer   string `json:"mailer"`

	// Status
	Status      string     `gorm:"default:'running'" json:"status"` // running, completed, cancelled, failed
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Statistics
	TotalRecipients int `gorm:"default:0" json:"total_recipients"`
	SentCount       int `gorm:"default:0" json:"sent_count"`
	FailedCount     int `gorm:"default:0" json:"failed_count"`
	SkippedCount    int `gorm:"default:0" json:"skipped_count"`

	// Relations
	Attempts []DeliveryAttempt `gorm:"foreignKey:CampaignRunID" json:"attempts,omitempty"`
}

// DeliveryAttempt records what happened to a single recipient within a run
type DeliveryAttempt struct {
	gorm.Model
	CampaignRunID uint   `gorm:"not null;index" json:"campaign_run_id"`
	RunID         string `gorm:"not null;index" json:"run_id"`
	Position      int    `json:"position"`

	Email  string `gorm:"not null;index" json:"email"`
	Name   string `json:"name"`
	Status string `gorm:"not null" json:"status"` // sent, failed, skipped

	// Verification outcome when the recipient was probed before sending
	Verified            bool   `gorm:"default:false" json:"verified"`
	VerificationOutcome string `json:"verification_outcome,omitempty"`
	Details             string `json:"details,omitempty"`

	AttemptedAt time.Time `json:"attempted_at"`
}
