// Package chat keeps the chat page's client state consistent under the
// socket event stream: the conversation directory, the active message
// timeline and the typing tracker.
package chat

import "context"

import "github.com/tullo/messenger/internal/models"

// Emitter is the socket surface the chat components use.
type Emitter interface {
	Connected() bool
	Emit(event string, payload interface{}) error
}

// Store is the REST surface the timeline uses.
type Store interface {
	Messages(ctx context.Context, roomID string, page, limit int) ([]models.Message, bool, error)
	CreateDirect(ctx context.Context, peerID string) (*models.Conversation, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	DeleteMessage(ctx context.Context, messageID string) error
	ClearChat(ctx context.Context, roomID string) error
}
