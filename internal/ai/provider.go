package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat-completion backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Sampling holds generation knobs shared by the HTTP providers.
// Zero values leave the backend's defaults in place.
type Sampling struct {
	Temperature *float64
	MaxTokens   int
}

func Temperature(v float64) *float64 { return &v }
