// Package simulator fakes buyer replies to outreach emails for local runs.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/suPer8Hu/outreach-agent/internal/ai"
)

type Tone string

const (
	TonePositive   Tone = "positive"
	ToneCurious    Tone = "curious"
	ToneSuspicious Tone = "suspicious"
	ToneNegative   Tone = "negative"
)

var Tones = []Tone{TonePositive, ToneCurious, ToneSuspicious, ToneNegative}

var ErrEmptyReply = errors.New("simulator: empty reply")

const promptTemplate = `You are roleplaying as a B2B packaging buyer receiving an unsolicited email from a packaging supplier.

Here is the email you received:
---
%s
---

Write a realistic reply from the buyer with a %s tone:
- If positive: express interest, ask follow-up questions, request pricing or timeline
- If curious: ask what makes the offer different and what the next step would be
- If negative: politely decline or say not interested
- If suspicious: ask skeptical questions, delay the decision, request proof or references

Make it read like a real B2B message with one question or comment that fits the tone.
Only output the reply text. Do not label the tone or explain anything.`

type Simulator struct {
	provider ai.Provider
	pick     func(n int) int
}

func New(p ai.Provider) *Simulator {
	return &Simulator{provider: p, pick: rand.IntN}
}

// WithPicker replaces the random tone choice; pick(n) must return [0,n).
func (s *Simulator) WithPicker(pick func(n int) int) *Simulator {
	s.pick = pick
	return s
}

func (s *Simulator) RandomTone() Tone {
	return Tones[s.pick(len(Tones))]
}

func Prompt(sentEmail string, tone Tone) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(sentEmail), tone)
}

// Reply picks a tone and asks the provider for a buyer reply to sentEmail.
func (s *Simulator) Reply(ctx context.Context, sentEmail string) (string, Tone, error) {
	tone := s.RandomTone()
	out, err := s.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleUser, Content: Prompt(sentEmail, tone)},
	})
	if err != nil {
		return "", tone, fmt.Errorf("simulator: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", tone, ErrEmptyReply
	}
	return out, tone, nil
}
