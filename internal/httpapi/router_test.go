package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/outreach-agent/internal/classifier"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/db"
	"github.com/suPer8Hu/outreach-agent/internal/httpapi/handlers"
	"github.com/suPer8Hu/outreach-agent/internal/httpapi/middleware"
	"github.com/suPer8Hu/outreach-agent/internal/jobs"
	"github.com/suPer8Hu/outreach-agent/internal/lock"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"github.com/suPer8Hu/outreach-agent/internal/memory"
	"github.com/suPer8Hu/outreach-agent/internal/reply"
)

func init() { gin.SetMode(gin.TestMode) }

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) PublishJob(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router *gin.Engine
	store  *memory.Store
	pub    *recordingPublisher
}

// decide answers "no" replies with a stop and everything else with a
// follow-up.
func decide(_ context.Context, _ conversation.Transcript, incoming string) (classifier.Decision, error) {
	if bytes.Contains([]byte(incoming), []byte("not interested")) {
		return classifier.Decision{Intent: "not_interested", ShouldContinue: false}, nil
	}
	return classifier.Decision{Intent: "interested", ShouldContinue: true, NextReply: "Happy to share pricing."}, nil
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	gdb, err := db.Connect(db.InMemoryDSN(t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, &jobs.Job{}))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := memory.NewStore(gdb)
	ctrl := reply.NewController(store, classifier.Func(decide), lock.NewLocal(), time.Second, logging.Discard())
	pub := &recordingPublisher{}
	h := handlers.NewHandler(ctrl, store, jobs.NewRepo(gdb), pub, logging.Discard())
	return &fixture{router: NewRouter(h, secret, logging.Discard()), store: store, pub: pub}
}

func (f *fixture) do(t *testing.T, method, path, body string, hdr map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestPingAndUnknownRoutes(t *testing.T) {
	f := newFixture(t, "")

	w, env := f.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w, env = f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)

	w, env = f.do(t, http.MethodDelete, "/ping", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 40500, env.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, http.MethodGet, "/ping", "", nil)

	w, _ := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestReplyFlow(t *testing.T) {
	f := newFixture(t, "")

	w, _ := f.do(t, http.MethodPost, "/leads/beta_corp/outreach", `{"body":"Hi Beta, we make compostable trays."}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := f.do(t, http.MethodPost, "/leads/beta_corp/replies", `{"message":"Sounds good, send pricing."}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out reply.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "Happy to share pricing.", out.FollowUp)
	assert.False(t, out.HandedOff)
	assert.Equal(t, 3, out.Messages)

	w, env = f.do(t, http.MethodGet, "/leads/beta_corp/conversation", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var conv struct {
		Messages       conversation.Transcript `json:"messages"`
		TurnedToManual bool                    `json:"turned_to_manual"`
		LastTxn        string                  `json:"last_transaction_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, conversation.SenderAgent, conv.Messages[0].Sender)
	assert.Equal(t, conversation.SenderLead, conv.Messages[1].Sender)
	assert.Equal(t, conversation.SenderAgent, conv.Messages[2].Sender)
	assert.False(t, conv.TurnedToManual)
	assert.Equal(t, string(conversation.TransactionSentEmail), conv.LastTxn)
}

func TestHandOffFlow(t *testing.T) {
	f := newFixture(t, "")

	f.do(t, http.MethodPost, "/leads/acme_co/outreach", `{"body":"Hello Acme"}`, nil)
	w, env := f.do(t, http.MethodPost, "/leads/acme_co/replies", `{"message":"We are not interested."}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out reply.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, out.HandedOff)
	assert.Empty(t, out.FollowUp)

	w, env = f.do(t, http.MethodGet, "/leads/manual", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"lead_ids":["acme_co"]}`, string(env.Data))

	w, env = f.do(t, http.MethodPost, "/leads/acme_co/outreach", `{"body":"one more"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)
}

func TestMarkManual(t *testing.T) {
	f := newFixture(t, "")

	w, env := f.do(t, http.MethodPost, "/leads/ghost/manual", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40403, env.Code)

	f.do(t, http.MethodPost, "/leads/kariout/outreach", `{"body":"Hello"}`, nil)
	w, _ = f.do(t, http.MethodPost, "/leads/kariout/manual", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ids, err := f.store.GetManualLeads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kariout"}, ids)
}

func TestUnseenConversationIsEmpty(t *testing.T) {
	f := newFixture(t, "")
	w, env := f.do(t, http.MethodGet, "/leads/nobody/conversation", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"messages":[]`)
}

func TestInvalidJSON(t *testing.T) {
	f := newFixture(t, "")
	w, env := f.do(t, http.MethodPost, "/leads/acme_co/replies", `{"msg":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10001, env.Code)
}

func TestAsyncReply_Idempotent(t *testing.T) {
	f := newFixture(t, "")
	hdr := map[string]string{"Idempotency-Key": "evt-42"}

	w, env := f.do(t, http.MethodPost, "/leads/beta_corp/replies/async", `{"message":"pricing?","reply_to":"buyer@beta.com"}`, hdr)
	require.Equal(t, http.StatusAccepted, w.Code)
	var first struct {
		JobID   string `json:"job_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.True(t, first.Created)

	w, env = f.do(t, http.MethodPost, "/leads/beta_corp/replies/async", `{"message":"pricing?"}`, hdr)
	require.Equal(t, http.StatusAccepted, w.Code)
	var second struct {
		JobID   string `json:"job_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, first.JobID, second.JobID)
	assert.False(t, second.Created)
	assert.Equal(t, []string{first.JobID}, f.pub.ids)

	w, env = f.do(t, http.MethodPost, "/leads/acme_co/replies/async", `{"message":"pricing?"}`, hdr)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40902, env.Code)

	w, env = f.do(t, http.MethodGet, "/jobs/"+first.JobID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"queued"`)
	assert.Contains(t, string(env.Data), `"lead_id":"beta_corp"`)
}

func TestAsyncReply_Errors(t *testing.T) {
	f := newFixture(t, "")

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'k'
	}
	w, env := f.do(t, http.MethodPost, "/leads/a/replies/async", `{"message":"x"}`, map[string]string{"Idempotency-Key": string(long)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10003, env.Code)

	f.pub.err = errors.New("broker down")
	w, env = f.do(t, http.MethodPost, "/leads/a/replies/async", `{"message":"x"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 50002, env.Code)

	w, env = f.do(t, http.MethodGet, "/jobs/"+jobs.NewID(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40402, env.Code)
}

func TestAuth(t *testing.T) {
	const secret = "router-test-secret-router-test-secret"
	f := newFixture(t, secret)

	w, env := f.do(t, http.MethodGet, "/leads/manual", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40101, env.Code)

	w, _ = f.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tok, err := middleware.IssueToken(secret, "ops", time.Minute)
	require.NoError(t, err)
	w, _ = f.do(t, http.MethodGet, "/leads/manual", "", map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, w.Code)
}
