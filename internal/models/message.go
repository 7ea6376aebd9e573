package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message types
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// TempIDPrefix marks a client-generated message id that has not been
// confirmed by the server yet.
const TempIDPrefix = "temp-"

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	Sender      User      `json:"sender"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	FileURL     string    `json:"fileUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IsRead      bool      `json:"isRead"`
}

// IsTemp reports whether the message is a local optimistic entry.
func (m Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// IsSystem reports whether the message is a system message. System
// messages are always considered read and never appear in read batches.
func (m Message) IsSystem() bool {
	return m.MessageType == MessageTypeSystem
}

// NewTempMessage builds an optimistic local message with a temp id.
func NewTempMessage(roomID string, sender User, content, messageType, fileURL string) Message {
	return Message{
		ID:          TempIDPrefix + uuid.NewString(),
		RoomID:      roomID,
		Sender:      sender,
		Content:     content,
		MessageType: messageType,
		FileURL:     fileURL,
		CreatedAt:   time.Now(),
	}
}
