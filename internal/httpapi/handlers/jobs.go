package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/outreach-agent/internal/jobs"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"gorm.io/gorm"
)

// HandleReplyAsync stores the reply as a job and hands it to the worker.
func (h *Handler) HandleReplyAsync(c *gin.Context) {
	id, okk := leadID(c)
	if !okk {
		return
	}
	var req replyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if h.Publisher == nil {
		fail(c, http.StatusServiceUnavailable, 50302, "queue not configured")
		return
	}

	log := logging.FromContext(c.Request.Context(), h.Log).With("lead_id", id)

	// read idempotency key
	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	j := &jobs.Job{
		ID:             jobs.NewID(),
		LeadID:         id,
		IncomingText:   req.Message,
		ReplyTo:        strings.TrimSpace(req.ReplyTo),
		IdempotencyKey: idempoKeyPtr,
		Status:         jobs.StatusQueued,
	}

	created := true
	if idempoKeyPtr == nil {
		if err := h.Jobs.Create(c.Request.Context(), j); err != nil {
			log.Error("create job failed", "job_id", j.ID, "err", err)
			fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
	} else {
		job, isNew, err := h.Jobs.CreateOrGetExisting(c.Request.Context(), j)
		if err != nil {
			log.Error("create job failed", "job_id", j.ID, "key", idempoKey, "err", err)
			fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
		if job.LeadID != id {
			fail(c, http.StatusConflict, 40902, "idempotency key used for another lead")
			return
		}
		j, created = job, isNew
	}

	// Enqueue only when a new job was created
	if created {
		if err := h.Publisher.PublishJob(c.Request.Context(), j.ID); err != nil {
			log.Error("publish job failed", "job_id", j.ID, "err", err)
			fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "ok",
		"data":    gin.H{"job_id": j.ID, "created": created},
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	if jobID == "" {
		fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		logging.FromContext(c.Request.Context(), h.Log).Error("get job failed", "job_id", jobID, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	ok(c, gin.H{
		"job": gin.H{
			"id":             j.ID,
			"lead_id":        j.LeadID,
			"status":         j.Status,
			"follow_up":      j.FollowUp,
			"handed_off":     j.HandedOff,
			"decision":       j.Decision,
			"error":          j.Error,
			"dispatch_error": j.DispatchError,
			"created_at":     j.CreatedAt,
			"updated_at":     j.UpdatedAt,
		},
	})
}
