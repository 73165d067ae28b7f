// Package jobs tracks inbound replies processed asynchronously by the worker.
package jobs

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Finished() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	LeadID       string `gorm:"type:varchar(191);index;not null" json:"lead_id"`
	IncomingText string `gorm:"type:text;not null" json:"incoming_text"`
	// ReplyTo is where a follow-up is sent. Empty means no dispatch.
	ReplyTo string `gorm:"type:varchar(320)" json:"reply_to,omitempty"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_reply_job_idempo" json:"idempotency_key,omitempty"`

	Status Status `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	FollowUp  *string        `gorm:"type:text" json:"follow_up,omitempty"`
	HandedOff bool           `gorm:"not null;default:false" json:"handed_off"`
	Decision  datatypes.JSON `json:"decision,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`
	// Set when the decision was stored but the follow-up could not be sent
	DispatchError *string `gorm:"type:text" json:"dispatch_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "reply_jobs" }

// NewID returns a fresh, time-ordered job id.
func NewID() string {
	return ulid.Make().String()
}
