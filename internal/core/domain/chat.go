package domain

import "time"

// ChatMessage is one line of in-room chat.
type ChatMessage struct {
	Author UserID    `json:"author"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}
