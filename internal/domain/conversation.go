package domain

import "time"

// Turn is a single persisted conversation message, user or assistant.
// Turns are append-only: this system never mutates or deletes them.
type Turn struct {
	PK             string
	SK             string
	ConversationID string
	Role           string
	Content        string
	SpeakLanguage  string
	AnswerLanguage string
	CreatedAt      time.Time
	TTL            int64
}

// ConversationMeta stores aggregate conversation state. It is touched on
// every persisted turn pair so clients can list conversations by recency.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	Owner          string
	LastActivity   string
	TTL            int64
}
