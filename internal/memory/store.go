// Package memory is the durable conversation store: one record per lead
// holding the transcript and the manual hand-off flag.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/lock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStoreIO wraps every failure of the underlying database.
var ErrStoreIO = errors.New("conversation store unavailable")

type Store struct {
	db    *gorm.DB
	locks *lock.Local
	now   func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, locks: lock.NewLocal(), now: time.Now}
}

// WithClock replaces the clock used for hand-off timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func storeErr(op, leadID string, err error) error {
	return fmt.Errorf("memory: %s %s: %w: %w", op, leadID, ErrStoreIO, err)
}

// GetConversation returns the transcript of leadID, empty when the lead has
// never been seen.
func (s *Store) GetConversation(ctx context.Context, leadID string) (conversation.Transcript, error) {
	rec, found, err := s.GetRecord(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !found {
		return conversation.Transcript{}, nil
	}
	return rec.Messages, nil
}

// GetRecord loads the full record. found is false for an unseen lead.
func (s *Store) GetRecord(ctx context.Context, leadID string) (*conversation.Record, bool, error) {
	var rec conversation.Record
	err := s.db.WithContext(ctx).Where("lead_id = ?", leadID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeErr("get", leadID, err)
	}
	if rec.Messages == nil {
		rec.Messages = conversation.Transcript{}
	}
	return &rec, true, nil
}

// UpdateConversation creates or fully replaces the record of leadID.
// The flag/timestamp pair is normalized: a lead that is not manual has no
// hand-off time, a manual lead without one is stamped now.
func (s *Store) UpdateConversation(ctx context.Context, leadID string, messages conversation.Transcript, meta conversation.Metadata) error {
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("memory: update %s: %w", leadID, err)
	}
	for _, m := range messages {
		if !m.Sender.Valid() {
			return fmt.Errorf("memory: update %s: %w: %q", leadID, conversation.ErrInvalidSender, m.Sender)
		}
	}

	unlock, err := s.locks.Lock(ctx, leadID)
	if err != nil {
		return storeErr("update", leadID, err)
	}
	defer unlock()

	if messages == nil {
		messages = conversation.Transcript{}
	}
	rec := conversation.Record{
		LeadID:         leadID,
		Messages:       messages,
		TurnedToManual: meta.TurnedToManual,
	}
	if meta.TurnedToManual {
		at := s.now().UTC()
		if meta.TurnedToManualAt != nil {
			at = meta.TurnedToManualAt.UTC()
		}
		rec.TurnedToManualAt = &at
	}
	if meta.LastTransactionType != "" {
		tt := meta.LastTransactionType
		rec.LastTransactionType = &tt
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "lead_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"messages", "turned_to_manual", "turned_to_manual_at", "last_transaction_type", "updated_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		return storeErr("update", leadID, err)
	}
	return nil
}

// MarkAsManual flags leadID for human follow-up and returns the effective
// hand-off time. The first hand-off time is kept on repeated calls. Unseen
// leads are left untouched and the zero time is returned.
func (s *Store) MarkAsManual(ctx context.Context, leadID string) (time.Time, error) {
	unlock, err := s.locks.Lock(ctx, leadID)
	if err != nil {
		return time.Time{}, storeErr("mark_manual", leadID, err)
	}
	defer unlock()

	var at time.Time
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec conversation.Record
		err := tx.Where("lead_id = ?", leadID).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.TurnedToManual && rec.TurnedToManualAt != nil {
			at = rec.TurnedToManualAt.UTC()
			return nil
		}
		at = s.now().UTC()
		return tx.Model(&conversation.Record{}).
			Where("lead_id = ?", leadID).
			Updates(map[string]any{
				"turned_to_manual":    true,
				"turned_to_manual_at": at,
			}).Error
	})
	if err != nil {
		return time.Time{}, storeErr("mark_manual", leadID, err)
	}
	return at, nil
}

// GetManualLeads lists the ids of every lead awaiting a human, oldest
// hand-off first.
func (s *Store) GetManualLeads(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).
		Model(&conversation.Record{}).
		Where("turned_to_manual = ?", true).
		Order("turned_to_manual_at ASC").
		Order("lead_id ASC").
		Pluck("lead_id", &ids).Error
	if err != nil {
		return nil, storeErr("list_manual", "*", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
