package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/suPer8Hu/outreach-agent/internal/lead"
	"github.com/suPer8Hu/outreach-agent/internal/metrics"
	"github.com/suPer8Hu/outreach-agent/internal/outbound"
	"github.com/suPer8Hu/outreach-agent/internal/reply"
)

type ReplyHandler interface {
	HandleReply(ctx context.Context, leadID, incoming string) (*reply.Outcome, error)
}

// Processor runs queued reply jobs through the reply controller and sends
// the resulting follow-up, if any.
type Processor struct {
	repo       *Repo
	handler    ReplyHandler
	dispatcher outbound.Dispatcher
	log        *slog.Logger
}

func NewProcessor(repo *Repo, handler ReplyHandler, dispatcher outbound.Dispatcher, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{repo: repo, handler: handler, dispatcher: dispatcher, log: log}
}

// Process handles job jobID once. Jobs that are already finished or claimed
// by another worker are skipped so a redelivered message never appends the
// same reply twice. A returned error means the job row records a failure.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()
	log := p.log.With("job_id", jobID)

	j, err := p.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	log = log.With("lead_id", j.LeadID)

	if j.Status.Finished() {
		log.Info("job already finished, skipping", "status", j.Status)
		return nil
	}
	claimed, err := p.repo.MarkRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		// TODO: reclaim jobs left running by a crashed worker after a lease expires
		log.Warn("job not queued, skipping", "status", j.Status)
		return nil
	}

	out, err := p.handler.HandleReply(ctx, j.LeadID, j.IncomingText)
	if err != nil {
		if markErr := p.repo.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			log.Error("mark job failed", "err", markErr)
		}
		metrics.RecordJob(string(StatusFailed))
		log.Error("job failed", "cost", time.Since(start), "err", err)
		return err
	}

	decision, err := json.Marshal(out.Decision)
	if err != nil {
		return err
	}
	var followUp *string
	if out.HasFollowUp() {
		f := out.FollowUp
		followUp = &f
	}
	markErr := p.repo.MarkSucceeded(ctx, jobID, followUp, out.HandedOff, decision)
	if markErr != nil {
		// the transcript already holds the outcome; keep it visible to an operator
		log.Error("mark job succeeded", "err", markErr,
			"handed_off", out.HandedOff, "follow_up", out.FollowUp, "reply_to", j.ReplyTo)
	} else {
		metrics.RecordJob(string(StatusSucceeded))
	}

	// the follow-up is part of the transcript, so it is sent even when the job
	// row could not be updated
	if out.HasFollowUp() && j.ReplyTo != "" && p.dispatcher != nil {
		p.dispatch(ctx, log, j, out.FollowUp)
	}
	if markErr != nil {
		return markErr
	}

	log.Info("job done", "handed_off", out.HandedOff, "follow_up", out.HasFollowUp(), "cost", time.Since(start))
	return nil
}

// dispatch failures are recorded on the job, not retried: the follow-up is
// already part of the transcript.
func (p *Processor) dispatch(ctx context.Context, log *slog.Logger, j *Job, body string) {
	err := p.dispatcher.Send(ctx, outbound.Email{
		To:      j.ReplyTo,
		Subject: lead.ReplySubject(j.LeadID),
		Body:    body,
	})
	if err == nil {
		return
	}
	metrics.RecordDispatchError(p.dispatcher.Channel())
	log.Error("follow-up dispatch failed", "to", j.ReplyTo, "err", err)
	if markErr := p.repo.MarkDispatchFailed(ctx, j.ID, err.Error()); markErr != nil {
		log.Error("mark dispatch failed", "err", markErr)
	}
}
