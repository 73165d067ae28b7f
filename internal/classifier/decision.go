// Package classifier turns a lead's reply into a continue/stop decision.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/outreach-agent/internal/conversation"
)

const IntentError = "error"

// Decision is the outcome of classifying one inbound reply.
// NextReply is only meaningful when ShouldContinue is true.
type Decision struct {
	Intent         string `json:"intent,omitempty"`
	ShouldContinue bool   `json:"should_continue"`
	NextReply      string `json:"next_reply,omitempty"`
	// Reason explains a fail-closed stop. Empty for model decisions.
	Reason string `json:"reason,omitempty"`
}

// Stop is the fail-closed decision.
func Stop(reason string) Decision {
	return Decision{Intent: IntentError, ShouldContinue: false, Reason: reason}
}

// Valid reports whether d can be acted on: continuing needs a reply to send.
func (d Decision) Valid() bool {
	return !d.ShouldContinue || strings.TrimSpace(d.NextReply) != ""
}

// Classifier decides whether the agent keeps talking to a lead.
// An error from Classify is treated as a stop by callers.
type Classifier interface {
	Classify(ctx context.Context, history conversation.Transcript, incoming string) (Decision, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, history conversation.Transcript, incoming string) (Decision, error)

func (f Func) Classify(ctx context.Context, history conversation.Transcript, incoming string) (Decision, error) {
	return f(ctx, history, incoming)
}

var (
	ErrNoJSON         = errors.New("no json object in model output")
	ErrMissingFlag    = errors.New("model output has no continue flag")
	ErrEmptyNextReply = errors.New("continue without a next reply")
)

// ParseDecision extracts a Decision from raw model output. It tolerates
// markdown fences, text around the object, both field naming schemes and
// yes/no strings for the flag.
func ParseDecision(raw string) (Decision, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return Decision{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return Decision{}, fmt.Errorf("classifier: decode: %w", err)
	}

	flagRaw, ok := first(fields, "should_continue", "continue")
	if !ok {
		return Decision{}, ErrMissingFlag
	}
	cont, err := parseFlag(flagRaw)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{ShouldContinue: cont}
	if v, ok := first(fields, "intent"); ok {
		d.Intent = stringValue(v)
	}
	if v, ok := first(fields, "next_reply", "suggested_reply"); ok {
		d.NextReply = strings.TrimSpace(stringValue(v))
	}
	if !d.ShouldContinue {
		d.NextReply = ""
	}
	if !d.Valid() {
		return Decision{}, ErrEmptyNextReply
	}
	return d, nil
}

func extractObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

func first(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func parseFlag(v json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, fmt.Errorf("classifier: continue flag %s: %w", v, ErrMissingFlag)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "y":
		return true, nil
	case "no", "false", "n":
		return false, nil
	}
	return false, fmt.Errorf("classifier: continue flag %q: %w", s, ErrMissingFlag)
}

func stringValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.Trim(string(v), `"`)
}
