package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/lock"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"github.com/suPer8Hu/outreach-agent/internal/reply"
)

type replyReq struct {
	Message string `json:"message" binding:"required"`
	// ReplyTo is only used by the async endpoint.
	ReplyTo string `json:"reply_to"`
}

type outreachReq struct {
	Body string `json:"body" binding:"required"`
}

func leadID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("lead_id"))
	if id == "" {
		fail(c, http.StatusBadRequest, 10002, "lead_id required")
		return "", false
	}
	return id, true
}

// writeLeadErr maps controller and store errors to the envelope.
func (h *Handler) writeLeadErr(c *gin.Context, op, id string, err error) {
	switch {
	case errors.Is(err, reply.ErrLeadManual):
		fail(c, http.StatusConflict, 40901, "lead is handled manually")
	case errors.Is(err, lock.ErrNotAcquired):
		fail(c, http.StatusServiceUnavailable, 50301, "lead is busy")
	default:
		logging.FromContext(c.Request.Context(), h.Log).Error(op+" failed", "lead_id", id, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// HandleReply runs an inbound reply through the controller synchronously.
func (h *Handler) HandleReply(c *gin.Context) {
	id, okk := leadID(c)
	if !okk {
		return
	}
	var req replyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	out, err := h.Replies.HandleReply(c.Request.Context(), id, req.Message)
	if err != nil {
		h.writeLeadErr(c, "handle reply", id, err)
		return
	}
	ok(c, out)
}

func (h *Handler) RecordOutreach(c *gin.Context) {
	id, okk := leadID(c)
	if !okk {
		return
	}
	var req outreachReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Replies.RecordOutreach(c.Request.Context(), id, req.Body); err != nil {
		h.writeLeadErr(c, "record outreach", id, err)
		return
	}
	ok(c, gin.H{"lead_id": id})
}

func (h *Handler) GetConversation(c *gin.Context) {
	id, okk := leadID(c)
	if !okk {
		return
	}
	rec, found, err := h.Conversations.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.writeLeadErr(c, "get conversation", id, err)
		return
	}
	if !found {
		// unseen leads have an empty conversation
		rec = &conversation.Record{LeadID: id, Messages: conversation.Transcript{}}
	}
	ok(c, gin.H{
		"lead_id":               rec.LeadID,
		"messages":              rec.Messages,
		"turned_to_manual":      rec.TurnedToManual,
		"turned_to_manual_at":   rec.TurnedToManualAt,
		"last_transaction_type": rec.LastTransactionType,
	})
}

func (h *Handler) MarkManual(c *gin.Context) {
	id, okk := leadID(c)
	if !okk {
		return
	}
	at, err := h.Replies.MarkManual(c.Request.Context(), id)
	if err != nil {
		h.writeLeadErr(c, "mark manual", id, err)
		return
	}
	if at.IsZero() {
		fail(c, http.StatusNotFound, 40403, "lead not found")
		return
	}
	ok(c, gin.H{"lead_id": id, "turned_to_manual_at": at})
}

func (h *Handler) ListManualLeads(c *gin.Context) {
	ids, err := h.Conversations.GetManualLeads(c.Request.Context())
	if err != nil {
		logging.FromContext(c.Request.Context(), h.Log).Error("list manual leads failed", "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"lead_ids": ids})
}
