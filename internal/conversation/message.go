package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Sender string

const (
	SenderAgent Sender = "agent"
	SenderLead  Sender = "lead"
)

var ErrInvalidSender = errors.New("invalid message sender")

func (s Sender) Valid() bool {
	return s == SenderAgent || s == SenderLead
}

// Message is one turn of a lead conversation.
// Content may be empty when a generation failed; the turn is still recorded.
type Message struct {
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// timestamp layouts accepted when decoding. The last two cover rows written
// before timestamps were RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

type messageJSON struct {
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var ts string
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(messageJSON{Sender: m.Sender, Content: m.Content, Timestamp: ts})
}

// UnmarshalJSON treats missing fields as zero values. Only a timestamp that
// is present but unparseable is an error.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	*m = Message{Sender: raw.Sender, Content: raw.Content, Timestamp: ts}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("conversation: unrecognised timestamp %q", s)
}

func NewLeadMessage(content string, at time.Time) Message {
	return Message{Sender: SenderLead, Content: content, Timestamp: at.UTC()}
}

func NewAgentMessage(content string, at time.Time) Message {
	return Message{Sender: SenderAgent, Content: content, Timestamp: at.UTC()}
}
