package domain

import "time"

// Origin tags who authored a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// SessionState is the conversation driver state.
type SessionState string

const (
	StateAwaitingInput SessionState = "awaiting_input"
	StateDispatching   SessionState = "dispatching"
	StateCompleted     SessionState = "completed"
)

// Greeting opens every session.
const Greeting = "Hello! I'll help you design your warehouse layout. What's the height requirement for your warehouse?"

// Message is a single conversation entry. History is append-only.
type Message struct {
	ID        string    `json:"id"`
	Origin    Origin    `json:"origin"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the state of one wizard conversation.
type Session struct {
	ID         string       `json:"id"`
	Messages   []Message    `json:"messages"`
	Attributes Attributes   `json:"attributes"`
	State      SessionState `json:"state"`
	// Notified is set once the completion event has been published.
	Notified bool `json:"notified"`
	// Version counts successful saves; stores use it to refuse stale writes.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates a session holding only the greeting.
func NewSession(id, greetingID string, now time.Time) *Session {
	return &Session{
		ID: id,
		Messages: []Message{{
			ID:        greetingID,
			Origin:    OriginAssistant,
			Text:      Greeting,
			CreatedAt: now,
		}},
		State:     StateAwaitingInput,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Completed reports whether the session reached its terminal state.
func (s *Session) Completed() bool {
	return s.State == StateCompleted
}
