// Package reply runs the inbound reply state machine for a lead: record the
// reply, decide, then either answer automatically or hand off to a human.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/outreach-agent/internal/classifier"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/lock"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"github.com/suPer8Hu/outreach-agent/internal/metrics"
)

var (
	ErrLeadManual  = errors.New("lead is handled manually")
	ErrEmptyLeadID = errors.New("lead id is required")

	errClassifierPanic = errors.New("classifier panicked")
)

// Store is the part of the conversation store the controller needs.
type Store interface {
	GetRecord(ctx context.Context, leadID string) (*conversation.Record, bool, error)
	UpdateConversation(ctx context.Context, leadID string, messages conversation.Transcript, meta conversation.Metadata) error
	MarkAsManual(ctx context.Context, leadID string) (time.Time, error)
}

const (
	OutcomeFollowUp      = "follow_up"
	OutcomeHandedOff     = "handed_off"
	OutcomeAlreadyManual = "already_manual"
	OutcomeError         = "error"
)

// Outcome describes what HandleReply did. FollowUp is empty when no
// automated follow-up should be sent.
type Outcome struct {
	LeadID        string              `json:"lead_id"`
	Decision      classifier.Decision `json:"decision"`
	FollowUp      string              `json:"follow_up,omitempty"`
	HandedOff     bool                `json:"handed_off"`
	AlreadyManual bool                `json:"already_manual"`
	Messages      int                 `json:"messages"`
}

func (o *Outcome) HasFollowUp() bool { return o != nil && o.FollowUp != "" }

func (o *Outcome) label() string {
	switch {
	case o.AlreadyManual:
		return OutcomeAlreadyManual
	case o.HandedOff:
		return OutcomeHandedOff
	default:
		return OutcomeFollowUp
	}
}

type Controller struct {
	store           Store
	classifier      classifier.Classifier
	locker          lock.Locker
	classifyTimeout time.Duration
	now             func() time.Time
	log             *slog.Logger
}

func NewController(store Store, cls classifier.Classifier, locker lock.Locker, classifyTimeout time.Duration, log *slog.Logger) *Controller {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if classifyTimeout <= 0 {
		classifyTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:           store,
		classifier:      cls,
		locker:          locker,
		classifyTimeout: classifyTimeout,
		now:             time.Now,
		log:             log,
	}
}

// WithClock replaces the clock used for message timestamps.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// HandleReply processes one inbound reply for leadID. Events for the same
// lead are serialized; store failures are returned and nothing is
// considered handled.
func (c *Controller) HandleReply(ctx context.Context, leadID, incoming string) (*Outcome, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return nil, ErrEmptyLeadID
	}
	log := logging.FromContext(ctx, c.log).With("lead_id", leadID)

	unlock, err := c.locker.Lock(ctx, leadID)
	if err != nil {
		metrics.RecordReply(OutcomeError, 0)
		return nil, fmt.Errorf("reply: lock %s: %w", leadID, err)
	}
	defer unlock()

	start := time.Now()
	out, err := c.handleLocked(ctx, log, leadID, incoming)
	if err != nil {
		metrics.RecordReply(OutcomeError, time.Since(start))
		log.Error("reply handling failed", "err", err)
		return nil, err
	}
	metrics.RecordReply(out.label(), time.Since(start))
	return out, nil
}

func (c *Controller) handleLocked(ctx context.Context, log *slog.Logger, leadID, incoming string) (*Outcome, error) {
	rec, found, err := c.store.GetRecord(ctx, leadID)
	if err != nil {
		return nil, err
	}
	history := conversation.Transcript{}
	if found {
		history = rec.Messages
	}

	history, err = history.Append(conversation.NewLeadMessage(incoming, history.NextTimestamp(c.now())))
	if err != nil {
		return nil, err
	}
	log.Info("reply received", "messages", history.Len())

	// a human owns this thread; keep the reply, stay silent
	if found && rec.TurnedToManual {
		if err := c.store.UpdateConversation(ctx, leadID, history, conversation.Metadata{
			TurnedToManual:      true,
			TurnedToManualAt:    rec.TurnedToManualAt,
			LastTransactionType: conversation.TransactionReceivedEmail,
		}); err != nil {
			return nil, err
		}
		log.Info("reply stored for manual lead")
		return &Outcome{
			LeadID:        leadID,
			Decision:      classifier.Decision{Reason: "lead already handled manually"},
			HandedOff:     true,
			AlreadyManual: true,
			Messages:      history.Len(),
		}, nil
	}

	decision := c.classify(ctx, log, history, incoming)

	// an operator may have taken the lead over while the model was running
	if decision.ShouldContinue {
		cur, _, err := c.store.GetRecord(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if cur != nil && cur.TurnedToManual {
			if err := c.store.UpdateConversation(ctx, leadID, history, conversation.Metadata{
				TurnedToManual:      true,
				TurnedToManualAt:    cur.TurnedToManualAt,
				LastTransactionType: conversation.TransactionReceivedEmail,
			}); err != nil {
				return nil, err
			}
			log.Info("lead turned manual during classification, follow-up dropped")
			return &Outcome{
				LeadID:        leadID,
				Decision:      classifier.Stop("lead turned manual during classification"),
				HandedOff:     true,
				AlreadyManual: true,
				Messages:      history.Len(),
			}, nil
		}
	}

	if !decision.ShouldContinue {
		at, err := c.store.MarkAsManual(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if at.IsZero() {
			at = c.now().UTC()
		}
		if err := c.store.UpdateConversation(ctx, leadID, history, conversation.Metadata{
			TurnedToManual:      true,
			TurnedToManualAt:    &at,
			LastTransactionType: conversation.TransactionReceivedEmail,
		}); err != nil {
			return nil, err
		}
		log.Info("thread handed off to a human", "intent", decision.Intent, "reason", decision.Reason)
		return &Outcome{
			LeadID:    leadID,
			Decision:  decision,
			HandedOff: true,
			Messages:  history.Len(),
		}, nil
	}

	history, err = history.Append(conversation.NewAgentMessage(decision.NextReply, history.NextTimestamp(c.now())))
	if err != nil {
		return nil, err
	}
	if err := c.store.UpdateConversation(ctx, leadID, history, conversation.Metadata{
		LastTransactionType: conversation.TransactionSentEmail,
	}); err != nil {
		return nil, err
	}
	log.Info("follow-up drafted", "intent", decision.Intent)
	return &Outcome{
		LeadID:   leadID,
		Decision: decision,
		FollowUp: decision.NextReply,
		Messages: history.Len(),
	}, nil
}

type classifyResult struct {
	d   classifier.Decision
	err error
}

// classify never fails: errors, panics, timeouts and unusable decisions
// become a stop. The controller stops waiting at the timeout even if the
// classifier ignores its context.
func (c *Controller) classify(ctx context.Context, log *slog.Logger, history conversation.Transcript, incoming string) classifier.Decision {
	cctx, cancel := context.WithTimeout(ctx, c.classifyTimeout)
	defer cancel()

	done := make(chan classifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classifyResult{err: fmt.Errorf("%w: %v", errClassifierPanic, r)}
			}
		}()
		d, err := c.classifier.Classify(cctx, history, incoming)
		done <- classifyResult{d: d, err: err}
	}()

	var res classifyResult
	select {
	case res = <-done:
	case <-cctx.Done():
	}
	if cctx.Err() != nil {
		log.Warn("classifier timed out, handing off", "timeout", c.classifyTimeout)
		metrics.RecordClassifierFailure("timeout")
		return classifier.Stop("timeout")
	}

	if res.err != nil {
		reason := "error"
		if errors.Is(res.err, errClassifierPanic) {
			reason = "panic"
		}
		log.Warn("classifier error, handing off", "err", res.err)
		metrics.RecordClassifierFailure(reason)
		return classifier.Stop(res.err.Error())
	}
	d := res.d
	if !d.Valid() {
		log.Warn("classifier returned continue without a reply, handing off")
		metrics.RecordClassifierFailure("invalid")
		return classifier.Stop("continue without a reply")
	}
	if !d.ShouldContinue {
		d.NextReply = ""
	}
	return d
}

// MarkManual hands leadID to a human under the lead lock, so it cannot
// interleave with a reply being handled. It returns the effective hand-off
// time, or the zero time for an unseen lead.
func (c *Controller) MarkManual(ctx context.Context, leadID string) (time.Time, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return time.Time{}, ErrEmptyLeadID
	}

	unlock, err := c.locker.Lock(ctx, leadID)
	if err != nil {
		return time.Time{}, fmt.Errorf("reply: lock %s: %w", leadID, err)
	}
	defer unlock()

	at, err := c.store.MarkAsManual(ctx, leadID)
	if err != nil {
		return time.Time{}, err
	}
	if !at.IsZero() {
		logging.FromContext(ctx, c.log).Info("lead handed off by operator", "lead_id", leadID, "at", at)
	}
	return at, nil
}

// RecordOutreach appends an outbound agent email to the lead's transcript.
// Manual leads are refused with ErrLeadManual.
func (c *Controller) RecordOutreach(ctx context.Context, leadID, body string) error {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return ErrEmptyLeadID
	}

	unlock, err := c.locker.Lock(ctx, leadID)
	if err != nil {
		return fmt.Errorf("reply: lock %s: %w", leadID, err)
	}
	defer unlock()

	rec, found, err := c.store.GetRecord(ctx, leadID)
	if err != nil {
		return err
	}
	history := conversation.Transcript{}
	if found {
		if rec.TurnedToManual {
			return fmt.Errorf("reply: outreach %s: %w", leadID, ErrLeadManual)
		}
		history = rec.Messages
	}

	history, err = history.Append(conversation.NewAgentMessage(body, history.NextTimestamp(c.now())))
	if err != nil {
		return err
	}
	if err := c.store.UpdateConversation(ctx, leadID, history, conversation.Metadata{
		LastTransactionType: conversation.TransactionSentEmail,
	}); err != nil {
		return err
	}
	metrics.RecordOutreach()
	logging.FromContext(ctx, c.log).Info("outreach recorded", "lead_id", leadID, "messages", history.Len())
	return nil
}
