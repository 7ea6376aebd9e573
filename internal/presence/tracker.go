// Package presence maintains the online/last-seen projection of
// counterpart users by polling the backend. Polling bounds staleness to
// one interval without the transport having to broadcast presence
// deltas to every peer.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tullo/messenger/internal/models"
)

// Source serves presence snapshots (the REST client in production).
type Source interface {
	OnlineUsers(ctx context.Context) (*models.PresenceSnapshot, error)
}

// Tracker polls while the chat view is visible and replaces its state
// wholesale on each response, so stale entries never linger after a
// user's session ends. At most one fetch is in flight at a time.
type Tracker struct {
	src      Source
	interval time.Duration

	mu       sync.RWMutex
	online   map[string]struct{}
	lastSeen map[string]time.Time
	visible  bool
	inflight bool
	running  bool
	stop     chan struct{}
	kick     chan struct{}
}

func NewTracker(src Source, interval time.Duration) *Tracker {
	return &Tracker{
		src:      src,
		interval: interval,
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
		visible:  true,
	}
}

// Start begins polling with an immediate first refresh.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.kick = make(chan struct{}, 1)
	stop, kick := t.stop, t.kick
	t.mu.Unlock()

	go t.loop(stop, kick)
	t.requestRefresh()
}

func (t *Tracker) loop(stop, kick chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.maybeRefresh()
		case <-kick:
			t.maybeRefresh()
		case <-stop:
			return
		}
	}
}

// Stop halts polling. Existing state stays readable.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stop)
}

// SetVisible gates polling on page visibility. Becoming visible again
// triggers an immediate refresh.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	wasVisible := t.visible
	t.visible = visible
	t.mu.Unlock()

	if visible && !wasVisible {
		t.requestRefresh()
	}
}

func (t *Tracker) requestRefresh() {
	t.mu.RLock()
	running := t.running
	kick := t.kick
	t.mu.RUnlock()
	if !running {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

func (t *Tracker) maybeRefresh() {
	t.mu.Lock()
	if !t.visible || t.inflight {
		t.mu.Unlock()
		return
	}
	t.inflight = true
	t.mu.Unlock()

	snap, err := t.src.OnlineUsers(context.Background())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = false
	if err != nil {
		log.Printf("presence poll failed: %v", err)
		return
	}

	online := make(map[string]struct{}, len(snap.OnlineUserIDs))
	for _, id := range snap.OnlineUserIDs {
		online[id] = struct{}{}
	}
	lastSeen := make(map[string]time.Time, len(snap.LastSeenByUserID))
	for id, at := range snap.LastSeenByUserID {
		lastSeen[id] = at
	}
	t.online = online
	t.lastSeen = lastSeen
}

// IsOnline reports whether the user appeared in the latest snapshot.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// LastSeen returns the user's last-seen timestamp from the latest
// snapshot.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.lastSeen[userID]
	return at, ok
}

// OnlineCount returns the size of the current online set.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}
