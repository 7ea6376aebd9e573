package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/tullo/messenger/internal/models"
	"github.com/tullo/messenger/internal/timer"
)

// TypingTracker tracks who is typing in the open conversation and
// drives the local typing signals: typing_start on the first keystroke
// after idle, typing_stop debounced after the last keystroke.
type TypingTracker struct {
	sock Emitter

	mu     sync.Mutex
	roomID string
	typing map[string]struct{}
	local  bool
	stop   *timer.Debouncer
}

func NewTypingTracker(sock Emitter, debounce time.Duration) *TypingTracker {
	return &TypingTracker{
		sock:   sock,
		typing: make(map[string]struct{}),
		stop:   timer.NewDebouncer(debounce),
	}
}

// SetActive switches the tracked conversation. Remote typing state for
// the previous conversation is discarded and a pending local stop is
// flushed immediately.
func (t *TypingTracker) SetActive(roomID string) {
	t.mu.Lock()
	prev := t.roomID
	wasTyping := t.local
	t.roomID = roomID
	t.typing = make(map[string]struct{})
	t.local = false
	t.mu.Unlock()

	t.stop.Stop()
	if wasTyping && prev != "" {
		t.sock.Emit(models.EventTypingStop, models.RoomPayload{RoomID: prev})
	}
}

// Keystroke records local typing. The stop signal self-clears one
// debounce interval after the last keystroke; each keystroke resets the
// timer.
func (t *TypingTracker) Keystroke() {
	t.mu.Lock()
	roomID := t.roomID
	first := !t.local
	if roomID != "" {
		t.local = true
	}
	t.mu.Unlock()

	if roomID == "" {
		return
	}
	if first {
		t.sock.Emit(models.EventTypingStart, models.RoomPayload{RoomID: roomID})
	}
	t.stop.Trigger(func() {
		t.mu.Lock()
		stillTyping := t.local && t.roomID == roomID
		t.local = false
		t.mu.Unlock()
		if stillTyping {
			t.sock.Emit(models.EventTypingStop, models.RoomPayload{RoomID: roomID})
		}
	})
}

// ApplyRemote records a counterpart's typing event. Events for a
// conversation other than the open one are ignored.
func (t *TypingTracker) ApplyRemote(evt models.TypingEvent, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if evt.RoomID != t.roomID || t.roomID == "" {
		return
	}
	if typing {
		t.typing[evt.UserID] = struct{}{}
	} else {
		delete(t.typing, evt.UserID)
	}
}

// TypingUsers returns the ids currently typing in the open
// conversation, sorted for stable display.
func (t *TypingTracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.typing))
	for id := range t.typing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close cancels the pending stop signal.
func (t *TypingTracker) Close() {
	t.stop.Stop()
}
