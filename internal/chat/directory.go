package chat

import (
	"sort"
	"sync"

	"github.com/tullo/messenger/internal/models"
)

// Directory is the ordered set of conversations with denormalized
// last-message and unread-count state. It is always sorted by
// lastMessageAt descending; ties keep insertion order (stable sort).
type Directory struct {
	mu       sync.RWMutex
	list     []models.Conversation
	activeID string
}

func NewDirectory() *Directory {
	return &Directory{}
}

// Replace installs the full list fetched from the server.
func (d *Directory) Replace(conversations []models.Conversation) {
	next := make([]models.Conversation, len(conversations))
	copy(next, conversations)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = next
	d.sortLocked()
}

// List returns a copy of the directory in display order.
func (d *Directory) List() []models.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Conversation, len(d.list))
	copy(out, d.list)
	return out
}

// Get returns the conversation with the given id.
func (d *Directory) Get(roomID string) (models.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.list {
		if d.list[i].ID == roomID {
			return d.list[i], true
		}
	}
	return models.Conversation{}, false
}

// SetActive marks the conversation the user is looking at. Opening a
// conversation resets its unread count; inbound messages for the active
// conversation never increment it.
func (d *Directory) SetActive(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeID = roomID
	if roomID == "" {
		return
	}
	next := d.copyLocked()
	for i := range next {
		if next[i].ID == roomID {
			next[i].UnreadCount = 0
		}
	}
	d.list = next
}

// ActiveID returns the currently open conversation id.
func (d *Directory) ActiveID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeID
}

// ApplyInbound folds a received message into the owning conversation:
// last-message preview, re-sort, and an unread increment unless the
// conversation is currently open. A message for an unknown conversation
// creates a stub entry, since no ordering is guaranteed between
// message_received and conversation_updated.
func (d *Directory) ApplyInbound(msg models.Message) {
	d.apply(msg, true)
}

// ApplyOutbound is the same update path for the sender's own messages;
// it never increments unread.
func (d *Directory) ApplyOutbound(msg models.Message) {
	d.apply(msg, false)
}

func (d *Directory) apply(msg models.Message, countUnread bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.copyLocked()
	found := false
	for i := range next {
		if next[i].ID == msg.RoomID {
			updateLast(&next[i], msg)
			if countUnread && next[i].ID != d.activeID {
				next[i].UnreadCount++
			}
			found = true
			break
		}
	}
	if !found {
		stub := models.Conversation{ID: msg.RoomID, Type: models.ConversationDirect}
		updateLast(&stub, msg)
		if countUnread && stub.ID != d.activeID {
			stub.UnreadCount = 1
		}
		next = append(next, stub)
	}

	d.list = next
	d.sortLocked()
}

func updateLast(c *models.Conversation, msg models.Message) {
	c.LastMessage = &models.LastMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    msg.Sender,
		CreatedAt: msg.CreatedAt,
	}
	c.LastMessageAt = msg.CreatedAt
}

// Upsert inserts a conversation at its sorted position or merges the
// server's fields into the existing entry. Used when a group is created
// or joined and when a direct chat is materialized.
func (d *Directory) Upsert(conv models.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.copyLocked()
	for i := range next {
		if next[i].ID == conv.ID {
			merge(&next[i], conv)
			d.list = next
			d.sortLocked()
			return
		}
	}
	d.list = append(next, conv)
	d.sortLocked()
}

func merge(dst *models.Conversation, src models.Conversation) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.ProfilePicture != "" {
		dst.ProfilePicture = src.ProfilePicture
	}
	if len(src.Participants) > 0 {
		dst.Participants = src.Participants
	}
	if src.LastMessage != nil {
		dst.LastMessage = src.LastMessage
		dst.LastMessageAt = src.LastMessageAt
	}
}

// RemoveOnLeave drops a conversation after the current user leaves it
// or is removed from it.
func (d *Directory) RemoveOnLeave(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.list[:0:0]
	for _, c := range d.list {
		if c.ID != roomID {
			next = append(next, c)
		}
	}
	d.list = next
	if d.activeID == roomID {
		d.activeID = ""
	}
}

// ApplyRoomUpdate merges a room_updated event's edits.
func (d *Directory) ApplyRoomUpdate(evt models.RoomUpdatedEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.copyLocked()
	for i := range next {
		if next[i].ID == evt.RoomID {
			if evt.Name != "" {
				next[i].Name = evt.Name
			}
			if evt.Description != "" {
				next[i].Description = evt.Description
			}
			if evt.ProfilePicture != "" {
				next[i].ProfilePicture = evt.ProfilePicture
			}
		}
	}
	d.list = next
}

// ApplyMemberChange keeps the participant list current for membership
// events concerning other users.
func (d *Directory) ApplyMemberChange(evt models.MemberEvent, joined bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.copyLocked()
	for i := range next {
		if next[i].ID != evt.RoomID {
			continue
		}
		if joined {
			present := false
			for _, p := range next[i].Participants {
				if p.ID == evt.UserID {
					present = true
					break
				}
			}
			if !present {
				next[i].Participants = append(
					append([]models.User{}, next[i].Participants...),
					models.User{ID: evt.UserID, Username: evt.Username})
			}
		} else {
			kept := next[i].Participants[:0:0]
			for _, p := range next[i].Participants {
				if p.ID != evt.UserID {
					kept = append(kept, p)
				}
			}
			next[i].Participants = kept
		}
	}
	d.list = next
}

// ClearLastMessage drops the denormalized preview after a chat clear.
func (d *Directory) ClearLastMessage(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.copyLocked()
	for i := range next {
		if next[i].ID == roomID {
			next[i].LastMessage = nil
		}
	}
	d.list = next
}

func (d *Directory) copyLocked() []models.Conversation {
	next := make([]models.Conversation, len(d.list))
	copy(next, d.list)
	return next
}

func (d *Directory) sortLocked() {
	sort.SliceStable(d.list, func(i, j int) bool {
		return d.list[i].LastMessageAt.After(d.list[j].LastMessageAt)
	})
}
