package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/jobs"
	"github.com/suPer8Hu/outreach-agent/internal/reply"
)

// Replies is the reply controller as seen by the API.
type Replies interface {
	HandleReply(ctx context.Context, leadID, incoming string) (*reply.Outcome, error)
	RecordOutreach(ctx context.Context, leadID, body string) error
	// MarkManual hands a lead to a human under the same per-lead lock as
	// HandleReply.
	MarkManual(ctx context.Context, leadID string) (time.Time, error)
}

// Conversations is the read side of the conversation store.
type Conversations interface {
	GetRecord(ctx context.Context, leadID string) (*conversation.Record, bool, error)
	GetManualLeads(ctx context.Context) ([]string, error)
}

type Jobs interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Create(ctx context.Context, job *jobs.Job) error
	CreateOrGetExisting(ctx context.Context, job *jobs.Job) (*jobs.Job, bool, error)
}

type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	Replies       Replies
	Conversations Conversations
	Jobs          Jobs
	// Publisher may be nil; the async endpoint then answers 503.
	Publisher Publisher
	Log       *slog.Logger
}

func NewHandler(replies Replies, convs Conversations, jobRepo Jobs, pub Publisher, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Replies: replies, Conversations: convs, Jobs: jobRepo, Publisher: pub, Log: log}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// Fail writes the error envelope; the router uses it for 404/405.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	fail(c, httpStatus, code, msg)
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}
