package conversation

import (
	"errors"
	"time"
)

type TransactionType string

const (
	TransactionSentEmail     TransactionType = "sent_email"
	TransactionReceivedEmail TransactionType = "received_email"
)

var ErrInvalidTransactionType = errors.New("invalid transaction type")

func (t TransactionType) Valid() bool {
	return t == TransactionSentEmail || t == TransactionReceivedEmail
}

// Record is the persisted conversation state of one lead.
type Record struct {
	LeadID              string           `gorm:"primaryKey;type:varchar(191)" json:"lead_id"`
	Messages            Transcript       `gorm:"not null" json:"messages"`
	TurnedToManual      bool             `gorm:"not null;default:false;index" json:"turned_to_manual"`
	TurnedToManualAt    *time.Time       `json:"turned_to_manual_at"`
	LastTransactionType *TransactionType `gorm:"type:varchar(32)" json:"last_transaction_type"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (Record) TableName() string { return "memory" }

// Metadata is the status part of an upsert. It replaces the stored values in
// full.
type Metadata struct {
	TurnedToManual      bool
	TurnedToManualAt    *time.Time
	LastTransactionType TransactionType
}

func (m Metadata) Validate() error {
	if m.LastTransactionType != "" && !m.LastTransactionType.Valid() {
		return ErrInvalidTransactionType
	}
	return nil
}
