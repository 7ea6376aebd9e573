package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tullo/messenger/internal/models"
)

type emitted struct {
	event   string
	payload []byte
}

// fakeEmitter records outbound events in order.
type fakeEmitter struct {
	mu        sync.Mutex
	connected bool
	events    []emitted
}

func (f *fakeEmitter) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeEmitter) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{event: event, payload: data})
	return nil
}

func (f *fakeEmitter) byName(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeStore serves canned pages and records REST calls.
type fakeStore struct {
	mu         sync.Mutex
	pages      map[int][]models.Message
	hasMore    map[int]bool
	direct     *models.Conversation
	directErr  error
	deleteErr  error
	clearErr   error
	markedRead []string
	deleted    []string
	cleared    []string
	fetches    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pages:   make(map[int][]models.Message),
		hasMore: make(map[int]bool),
	}
}

func (f *fakeStore) Messages(_ context.Context, roomID string, page, limit int) ([]models.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.pages[page], f.hasMore[page], nil
}

func (f *fakeStore) CreateDirect(_ context.Context, peerID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.directErr != nil {
		return nil, f.directErr
	}
	return f.direct, nil
}

func (f *fakeStore) MarkMessageRead(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, messageID)
	return nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeStore) ClearChat(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, roomID)
	return nil
}

// quietNotifier swallows notices.
type quietNotifier struct{}

func (quietNotifier) Info(string)  {}
func (quietNotifier) Error(string) {}
