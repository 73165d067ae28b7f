package conversation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Transcript is the ordered message history of one lead. It is append-only:
// Append never mutates the receiver's backing array.
type Transcript []Message

func (t Transcript) Len() int { return len(t) }

// Append returns a new transcript with m added at the end.
func (t Transcript) Append(m Message) (Transcript, error) {
	if !m.Sender.Valid() {
		return t, fmt.Errorf("conversation: %w: %q", ErrInvalidSender, m.Sender)
	}
	out := make(Transcript, len(t), len(t)+1)
	copy(out, t)
	return append(out, m), nil
}

// Last returns the newest message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// NextTimestamp returns now, or the newest message's timestamp when the clock
// went backwards, so that timestamps never decrease along the transcript.
func (t Transcript) NextTimestamp(now time.Time) time.Time {
	now = now.UTC()
	if last, ok := t.Last(); ok && now.Before(last.Timestamp) {
		return last.Timestamp
	}
	return now
}

// Encode serializes the transcript. A nil transcript encodes as "[]".
func (t Transcript) Encode() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Message(t))
}

// Decode parses an encoded transcript. Empty input and "null" decode to an
// empty transcript.
func Decode(b []byte) (Transcript, error) {
	if len(b) == 0 || string(b) == "null" {
		return Transcript{}, nil
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("conversation: decode transcript: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return Transcript(msgs), nil
}

// Value implements driver.Valuer.
func (t Transcript) Value() (driver.Value, error) {
	b, err := t.Encode()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Transcript) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("conversation: cannot scan %T into Transcript", src)
	}
	decoded, err := Decode(b)
	if err != nil {
		return err
	}
	*t = decoded
	return nil
}

func (Transcript) GormDataType() string { return "text" }

func (Transcript) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "mysql" {
		return "LONGTEXT"
	}
	return "TEXT"
}
