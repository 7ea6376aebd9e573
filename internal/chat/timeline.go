package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tullo/messenger/internal/models"
	"github.com/tullo/messenger/internal/notify"
	"github.com/tullo/messenger/internal/timer"
)

// Timeline is the ordered message log of the currently open
// conversation. Message order is insertion order as received; a temp
// message is replaced in place once its server echo reconciles. Every
// mutation swaps the whole slice, so concurrent handlers observe either
// the fully-previous or the fully-next state.
type Timeline struct {
	store    Store
	sock     Emitter
	dir      *Directory
	notifier notify.Notifier
	self     models.User
	pageSize int

	mu       sync.Mutex
	roomID   string
	peerID   string // placeholder peer until the direct chat materializes
	messages []models.Message
	page     int
	hasMore  bool
	loading  bool
	// bumped on every Open; late page responses for an older epoch are dropped
	epoch int

	materializing bool
	queued        []models.SendMessagePayload

	readTimer   *timer.Debouncer
	pendingRead map[string]struct{}
}

func NewTimeline(store Store, sock Emitter, dir *Directory, notifier notify.Notifier, self models.User, pageSize int, readDebounce time.Duration) *Timeline {
	return &Timeline{
		store:       store,
		sock:        sock,
		dir:         dir,
		notifier:    notifier,
		self:        self,
		pageSize:    pageSize,
		readTimer:   timer.NewDebouncer(readDebounce),
		pendingRead: make(map[string]struct{}),
	}
}

// Open discards the previous timeline and loads the first page of the
// given conversation. A placeholder direct chat (no server id yet) opens
// empty; its room materializes on first send.
func (t *Timeline) Open(ctx context.Context, conv models.Conversation) error {
	t.mu.Lock()
	t.epoch++
	epoch := t.epoch
	t.roomID = conv.ID
	t.peerID = ""
	if conv.ID == "" {
		if peer := conv.Peer(t.self.ID); peer != nil {
			t.peerID = peer.ID
		}
	}
	t.messages = nil
	t.page = 1
	t.hasMore = false
	t.loading = false
	t.materializing = false
	t.queued = nil
	t.pendingRead = make(map[string]struct{})
	t.readTimer.Stop()
	roomID := t.roomID
	t.mu.Unlock()

	if roomID == "" {
		return nil
	}

	msgs, hasMore, err := t.store.Messages(ctx, roomID, 1, t.pageSize)
	if err != nil {
		t.notifier.Error("Failed to load messages")
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch {
		// conversation switched while the fetch was in flight
		return nil
	}
	t.messages = ascending(msgs)
	t.hasMore = hasMore
	return nil
}

// LoadOlder fetches the next page and prepends it. It is a no-op while
// another fetch is in flight or when no older pages remain.
func (t *Timeline) LoadOlder(ctx context.Context) error {
	t.mu.Lock()
	if t.loading || !t.hasMore || t.roomID == "" {
		t.mu.Unlock()
		return nil
	}
	t.loading = true
	epoch := t.epoch
	roomID := t.roomID
	page := t.page + 1
	t.mu.Unlock()

	msgs, hasMore, err := t.store.Messages(ctx, roomID, page, t.pageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch {
		return nil
	}
	t.loading = false
	if err != nil {
		t.notifier.Error("Failed to load older messages")
		return err
	}
	t.page = page
	t.hasMore = hasMore

	next := make([]models.Message, 0, len(msgs)+len(t.messages))
	next = append(next, ascending(msgs)...)
	next = append(next, t.messages...)
	t.messages = next
	return nil
}

// Send appends an optimistic temp message, reflects it in the
// directory, and publishes it over the socket. Message send has no REST
// fallback: while disconnected it refuses without touching state. For a
// placeholder conversation the send is queued, the room is materialized
// once, and the queue is retried once automatically.
func (t *Timeline) Send(ctx context.Context, content, messageType, fileURL string) error {
	t.mu.Lock()
	roomID := t.roomID
	placeholder := roomID == "" && t.peerID != ""
	t.mu.Unlock()

	if !placeholder && roomID == "" {
		return fmt.Errorf("no open conversation")
	}
	if !placeholder && !t.sock.Connected() {
		t.notifier.Error("Not connected — message not sent")
		return fmt.Errorf("send message: not connected")
	}

	temp := models.NewTempMessage(roomID, t.self, content, messageType, fileURL)

	t.mu.Lock()
	next := make([]models.Message, 0, len(t.messages)+1)
	next = append(next, t.messages...)
	next = append(next, temp)
	t.messages = next
	payload := models.SendMessagePayload{
		RoomID:      roomID,
		Content:     content,
		MessageType: messageType,
		FileURL:     fileURL,
	}
	var materialize bool
	if placeholder {
		t.queued = append(t.queued, payload)
		materialize = !t.materializing
		if materialize {
			t.materializing = true
		}
	}
	t.mu.Unlock()

	if roomID != "" {
		t.dir.ApplyOutbound(temp)
		return t.sock.Emit(models.EventSendMessage, payload)
	}

	if materialize {
		return t.materialize(ctx)
	}
	return nil
}

// materialize creates the direct conversation, then flushes the queued
// sends exactly once.
func (t *Timeline) materialize(ctx context.Context) error {
	t.mu.Lock()
	peerID := t.peerID
	epoch := t.epoch
	t.mu.Unlock()

	conv, err := t.store.CreateDirect(ctx, peerID)
	if err != nil {
		t.mu.Lock()
		if t.epoch == epoch {
			t.materializing = false
			t.queued = nil
		}
		t.mu.Unlock()
		t.notifier.Error("Failed to start conversation")
		return err
	}

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		return nil
	}
	t.roomID = conv.ID
	t.peerID = ""
	t.materializing = false
	queued := t.queued
	t.queued = nil
	// adopt the room id on the optimistic entries
	next := t.copyMessagesLocked()
	for i := range next {
		if next[i].RoomID == "" {
			next[i].RoomID = conv.ID
		}
	}
	t.messages = next
	t.mu.Unlock()

	t.dir.Upsert(*conv)
	t.dir.SetActive(conv.ID)
	if err := t.sock.Emit(models.EventJoinRoom, models.RoomPayload{RoomID: conv.ID}); err != nil {
		log.Printf("join_room after materialize failed: %v", err)
	}

	for _, payload := range queued {
		payload.RoomID = conv.ID
		if err := t.sock.Emit(models.EventSendMessage, payload); err != nil {
			t.notifier.Error("Not connected — message not sent")
		}
	}
	return nil
}

// ReconcileInbound folds an inbound message into the open timeline and
// returns true when it was applied (message belonged to this room).
func (t *Timeline) ReconcileInbound(msg models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.RoomID != t.roomID || t.roomID == "" {
		return false
	}
	t.messages, _ = Reconcile(t.messages, msg, t.self.ID)
	return true
}

// ScheduleRead queues unread message ids for a read-receipt batch that
// fires after the debounce interval. System and temp ids never enter a
// batch; the local isRead flag flips optimistically regardless of
// transport outcome. Re-scheduling resets the timer, so only the latest
// batch fires, covering the union of ids.
func (t *Timeline) ScheduleRead(messageIDs []string) {
	t.mu.Lock()
	byID := make(map[string]models.Message, len(t.messages))
	for _, m := range t.messages {
		byID[m.ID] = m
	}

	added := 0
	next := t.copyMessagesLocked()
	for _, id := range messageIDs {
		m, ok := byID[id]
		if !ok || m.IsSystem() || m.IsTemp() || m.IsRead {
			continue
		}
		t.pendingRead[id] = struct{}{}
		for i := range next {
			if next[i].ID == id {
				next[i].IsRead = true
			}
		}
		added++
	}
	t.messages = next
	t.mu.Unlock()

	if added > 0 {
		t.readTimer.Trigger(t.flushRead)
	}
}

func (t *Timeline) flushRead() {
	t.mu.Lock()
	roomID := t.roomID
	ids := make([]string, 0, len(t.pendingRead))
	for id := range t.pendingRead {
		ids = append(ids, id)
	}
	t.pendingRead = make(map[string]struct{})
	t.mu.Unlock()

	if len(ids) == 0 || roomID == "" {
		return
	}

	if t.sock.Connected() {
		if err := t.sock.Emit(models.EventMarkRead, models.MarkReadPayload{RoomID: roomID, MessageIDs: ids}); err == nil {
			return
		}
	}

	// REST fallback, one call per id
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := t.store.MarkMessageRead(context.Background(), id); err != nil {
				log.Printf("mark read fallback failed for %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
}

// ApplyReadEvent flips isRead on the listed messages.
func (t *Timeline) ApplyReadEvent(evt models.MessagesReadEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if evt.RoomID != t.roomID {
		return
	}
	read := make(map[string]struct{}, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		read[id] = struct{}{}
	}
	next := t.copyMessagesLocked()
	for i := range next {
		if _, ok := read[next[i].ID]; ok {
			next[i].IsRead = true
		}
	}
	t.messages = next
}

// ApplyDeleted removes a message deleted elsewhere.
func (t *Timeline) ApplyDeleted(evt models.MessageDeletedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if evt.RoomID != t.roomID {
		return
	}
	t.removeLocked(evt.MessageID)
}

// ApplyCleared empties the timeline after a chat_cleared event.
func (t *Timeline) ApplyCleared(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if roomID != t.roomID {
		return
	}
	t.messages = nil
}

// Delete removes a message via REST; local state changes only on
// success.
func (t *Timeline) Delete(ctx context.Context, messageID string) error {
	if err := t.store.DeleteMessage(ctx, messageID); err != nil {
		t.notifier.Error("Failed to delete message")
		return err
	}
	t.mu.Lock()
	t.removeLocked(messageID)
	t.mu.Unlock()
	return nil
}

// Clear empties the conversation via REST; on success the timeline and
// the directory's last-message preview are both cleared.
func (t *Timeline) Clear(ctx context.Context) error {
	t.mu.Lock()
	roomID := t.roomID
	t.mu.Unlock()
	if roomID == "" {
		return nil
	}

	if err := t.store.ClearChat(ctx, roomID); err != nil {
		t.notifier.Error("Failed to clear chat")
		return err
	}

	t.mu.Lock()
	if t.roomID == roomID {
		t.messages = nil
	}
	t.mu.Unlock()
	t.dir.ClearLastMessage(roomID)
	return nil
}

// Messages returns a copy of the timeline in display order.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyMessagesLocked()
}

// RoomID returns the open conversation's id, empty for a placeholder.
func (t *Timeline) RoomID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomID
}

// HasMore reports whether older pages remain.
func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Close cancels the pending read batch.
func (t *Timeline) Close() {
	t.readTimer.Stop()
}

func (t *Timeline) removeLocked(messageID string) {
	next := t.messages[:0:0]
	for _, m := range t.messages {
		if m.ID != messageID {
			next = append(next, m)
		}
	}
	t.messages = next
}

func (t *Timeline) copyMessagesLocked() []models.Message {
	next := make([]models.Message, len(t.messages))
	copy(next, t.messages)
	return next
}

// ascending reverses a descending fetch page into display order.
func ascending(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
