package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is deduplicated by ID on receipt, which lets a sender append
// its own message optimistically and drop the broadcast echo.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   UserID    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

func NewChatMessage(sender UserID, senderName, text string) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   sender,
		SenderName: senderName,
		Text:       text,
		SentAt:     time.Now(),
	}
}
