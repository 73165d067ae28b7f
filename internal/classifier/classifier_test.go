package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/outreach-agent/internal/ai"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
)

type stubProvider struct {
	reply string
	err   error
	delay time.Duration
	last  []ai.Message
}

func (p *stubProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.last = append([]ai.Message(nil), messages...)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.reply, p.err
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			name: "current field names",
			raw:  `{"intent":"asking for pricing","should_continue":true,"next_reply":"Sure, here is our price sheet."}`,
			want: Decision{Intent: "asking for pricing", ShouldContinue: true, NextReply: "Sure, here is our price sheet."},
		},
		{
			name: "legacy field names",
			raw:  `{"continue": true, "suggested_reply": "Happy to help."}`,
			want: Decision{ShouldContinue: true, NextReply: "Happy to help."},
		},
		{
			name: "fenced with prose around",
			raw:  "Here you go:\n```json\n{\"intent\":\"not interested\",\"should_continue\":false}\n```",
			want: Decision{Intent: "not interested", ShouldContinue: false},
		},
		{
			name: "yes string flag",
			raw:  `{"should_continue":"yes","next_reply":"Thanks!"}`,
			want: Decision{ShouldContinue: true, NextReply: "Thanks!"},
		},
		{
			name: "stop drops reply text",
			raw:  `{"should_continue":"no","next_reply":"ignored"}`,
			want: Decision{ShouldContinue: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDecision_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"no json":           "I think they are interested!",
		"broken json":       `{"should_continue": tru`,
		"missing flag":      `{"intent":"interested"}`,
		"weird flag":        `{"should_continue":"maybe"}`,
		"continue no reply": `{"should_continue":true}`,
		"continue blank":    `{"should_continue":true,"next_reply":"   "}`,
		"null flag":         `{"should_continue":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecision(raw)
			assert.Error(t, err)
		})
	}
	_, err := ParseDecision(`{"should_continue":true}`)
	assert.ErrorIs(t, err, ErrEmptyNextReply)
}

func TestLLM_Continue(t *testing.T) {
	p := &stubProvider{reply: `{"intent":"interested","should_continue":true,"next_reply":"Here are the details."}`}
	c := NewLLM(p, time.Second, logging.Discard())

	history := conversation.Transcript{
		conversation.NewAgentMessage("We make boxes.", time.Now()),
		conversation.NewLeadMessage("Send pricing", time.Now()),
	}
	d, err := c.Classify(context.Background(), history, "Send pricing")
	require.NoError(t, err)
	assert.True(t, d.ShouldContinue)
	assert.Equal(t, "Here are the details.", d.NextReply)

	require.Len(t, p.last, 2)
	assert.Equal(t, ai.RoleSystem, p.last[0].Role)
	assert.Contains(t, p.last[1].Content, "agent: We make boxes.\n\nlead: Send pricing")
	assert.Contains(t, p.last[1].Content, `"Send pricing"`)
}

func TestLLM_FailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
		timeout  time.Duration
		reason   string
	}{
		{"transport error", &stubProvider{err: errors.New("connection refused")}, time.Second, "transport"},
		{"timeout", &stubProvider{reply: `{"should_continue":true,"next_reply":"late"}`, delay: time.Second}, 20 * time.Millisecond, "timeout"},
		{"garbage", &stubProvider{reply: "<html>502</html>"}, time.Second, "unparseable"},
		{"continue without reply", &stubProvider{reply: `{"should_continue":true}`}, time.Second, "unparseable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLM(tt.provider, tt.timeout, logging.Discard())
			d, err := c.Classify(context.Background(), nil, "hello")
			require.NoError(t, err)
			assert.False(t, d.ShouldContinue)
			assert.Empty(t, d.NextReply)
			assert.Equal(t, IntentError, d.Intent)
			assert.True(t, strings.HasPrefix(d.Reason, tt.reason), "reason %q", d.Reason)
		})
	}
}

func TestStopIsValid(t *testing.T) {
	assert.True(t, Stop("x").Valid())
	assert.False(t, Decision{ShouldContinue: true}.Valid())
}
