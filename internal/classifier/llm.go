package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/outreach-agent/internal/ai"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"github.com/suPer8Hu/outreach-agent/internal/metrics"
)

const systemPrompt = "Respond ONLY with a valid JSON object as specified in the prompt."

const analysisPrompt = `You are analyzing an email thread between a packaging supplier and a potential business lead.

Here is the conversation history:
---
%s
---

The latest reply from the lead is:
"%s"

Please analyze the most recent reply from the lead. Answer the following:

1. What is the intent of the lead's reply? (e.g., interested, not interested, asking for pricing, generic response, bounce, unsubscribe, etc.)
2. Should the AI assistant continue the conversation? (true or false)
3. If yes, what would be a natural and helpful next reply? Draft it accordingly.
4. If no, stop the conversation.

Output as structured JSON with fields:
- "intent"
- "should_continue"
- "next_reply" (only if should_continue is true)
`

// LLM classifies replies with a chat model. It never returns an error:
// every failure becomes Stop so the lead goes to a human.
type LLM struct {
	provider ai.Provider
	timeout  time.Duration
	log      *slog.Logger
}

func NewLLM(provider ai.Provider, timeout time.Duration, log *slog.Logger) *LLM {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &LLM{provider: provider, timeout: timeout, log: log}
}

func BuildPrompt(history conversation.Transcript, incoming string) []ai.Message {
	blocks := make([]string, 0, len(history))
	for _, m := range history {
		blocks = append(blocks, fmt.Sprintf("%s: %s", m.Sender, m.Content))
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf(analysisPrompt, strings.Join(blocks, "\n\n"), incoming)},
	}
}

func (c *LLM) Classify(ctx context.Context, history conversation.Transcript, incoming string) (Decision, error) {
	log := logging.FromContext(ctx, c.log)

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.provider.Chat(cctx, BuildPrompt(history, incoming))
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.RecordClassifierFailure(reason)
		log.Error("reply classification failed", "reason", reason, "err", err)
		return Stop(reason + ": " + err.Error()), nil
	}

	d, err := ParseDecision(raw)
	if err != nil {
		metrics.RecordClassifierFailure("unparseable")
		log.Error("reply classification unparseable", "err", err, "raw", truncate(raw, 500))
		return Stop("unparseable: " + err.Error()), nil
	}

	log.Debug("reply classified", "intent", d.Intent, "should_continue", d.ShouldContinue)
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
