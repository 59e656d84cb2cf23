package storage

import "time"

// Event represents a single interaction of a user and the assistant.
// It is intentionally simple to allow future DB implementations.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	ChatID            int64     `json:"chat_id"`
	SessionID         string    `json:"session_id"`
	Mode              string    `json:"mode"`
	MessageID         string    `json:"message_id,omitempty"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
}

// Recorder abstracts persistence of interaction events.
// Implementations can be file-based, database, etc.
// LoadInteractions should return events in chronological order.
// AppendInteraction should atomically append a new event.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
