package models

import "time"

// Conversation types
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// LastMessage is the denormalized preview shown in the conversation list.
type LastMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is one entry of the conversation directory. ID is empty
// for a placeholder direct chat that has not been materialized yet.
type Conversation struct {
	ID             string       `json:"id"`
	Type           string       `json:"type"`
	Participants   []User       `json:"participants,omitempty"`
	Name           string       `json:"name,omitempty"`
	Description    string       `json:"description,omitempty"`
	ProfilePicture string       `json:"profilePicture,omitempty"`
	LastMessage    *LastMessage `json:"lastMessage,omitempty"`
	LastMessageAt  time.Time    `json:"lastMessageAt"`
	UnreadCount    int          `json:"unreadCount"`
}

// IsGroup reports whether the conversation is a group chat.
func (c Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// Peer returns the counterpart of a direct conversation, excluding the
// given user id.
func (c Conversation) Peer(selfID string) *User {
	if c.IsGroup() {
		return nil
	}
	for i := range c.Participants {
		if c.Participants[i].ID != selfID {
			return &c.Participants[i]
		}
	}
	return nil
}
