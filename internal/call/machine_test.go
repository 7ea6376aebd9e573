package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tullo/messenger/internal/api"
	"github.com/tullo/messenger/internal/models"
)

type fakeSetup struct {
	mu        sync.Mutex
	createErr error
	created   int
	ended     []string
}

func (f *fakeSetup) CreateCallRoom(_ context.Context, req api.CallRoomRequest) (*models.CallSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &models.CallSession{
		MeetingID: "meet-1",
		Token:     "tok-1",
		CallType:  req.CallType,
		IsGroup:   req.IsGroup,
		RoomID:    req.RoomID,
	}, nil
}

func (f *fakeSetup) EndCallSession(_ context.Context, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, meetingID)
	return nil
}

func (f *fakeSetup) endedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ended)
}

type fakeSignaler struct {
	mu     sync.Mutex
	events []string
	bodies [][]byte
}

func (f *fakeSignaler) Emit(event string, payload interface{}) error {
	data, _ := json.Marshal(payload)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.bodies = append(f.bodies, data)
	return nil
}

func (f *fakeSignaler) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type recordNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (r *recordNotifier) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

func (r *recordNotifier) Error(msg string) { r.Info(msg) }

func (r *recordNotifier) has(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notices {
		if n == msg {
			return true
		}
	}
	return false
}

var me = models.User{ID: "self", Username: "me"}
var peer = models.User{ID: "peer", Username: "pat"}

func newMachine(setup *fakeSetup, sig *fakeSignaler, n *recordNotifier, ring, noJoiner time.Duration) *Machine {
	return NewMachine(setup, sig, n, me, ring, noJoiner)
}

func TestOutgoingRingTimeout(t *testing.T) {
	setup := &fakeSetup{}
	sig := &fakeSignaler{}
	n := &recordNotifier{}
	m := newMachine(setup, sig, n, 50*time.Millisecond, time.Hour)

	if err := m.Initiate(context.Background(), peer, models.CallTypeVoice); err != nil {
		t.Fatalf("Initiate error: %v", err)
	}
	if m.State() != models.CallOutgoing {
		t.Fatalf("expected outgoing, got %v", m.State())
	}

	time.Sleep(120 * time.Millisecond)

	if m.State() != models.CallIdle {
		t.Fatalf("expected clean idle after timeout, got %v", m.State())
	}
	if !n.has("User unavailable") {
		t.Error("missing unavailable notice")
	}
	if sig.count(models.EventCallEnded) != 1 {
		t.Error("counterpart not notified of the timeout")
	}
	if setup.endedCount() != 1 {
		t.Error("unused media session not torn down")
	}
}

func TestAcceptBeforeTimeoutCancelsTimer(t *testing.T) {
	setup := &fakeSetup{}
	sig := &fakeSignaler{}
	n := &recordNotifier{}
	m := newMachine(setup, sig, n, 60*time.Millisecond, time.Hour)

	m.Initiate(context.Background(), peer, models.CallTypeVideo)
	time.Sleep(30 * time.Millisecond) // accepted late, but inside the window
	m.HandleAccepted(models.CallAcceptedEvent{MeetingID: "meet-1"})

	if m.State() != models.CallActive {
		t.Fatalf("expected active after accept, got %v", m.State())
	}

	time.Sleep(80 * time.Millisecond)
	if m.State() != models.CallActive {
		t.Fatal("cancelled ring timer still fired")
	}
	if n.has("User unavailable") {
		t.Fatal("unavailable notice after accept")
	}
}

func TestSecondInitiateRejectedWithoutMutation(t *testing.T) {
	setup := &fakeSetup{}
	m := newMachine(setup, &fakeSignaler{}, &recordNotifier{}, time.Hour, time.Hour)

	m.Initiate(context.Background(), peer, models.CallTypeVoice)
	session, _ := m.Session()

	if err := m.Initiate(context.Background(), models.User{ID: "other"}, models.CallTypeVoice); err != ErrCallInProgress {
		t.Fatalf("expected ErrCallInProgress, got %v", err)
	}
	if m.State() != models.CallOutgoing {
		t.Fatalf("existing call state mutated: %v", m.State())
	}
	after, _ := m.Session()
	if after.MeetingID != session.MeetingID {
		t.Fatal("existing session replaced")
	}
	if setup.created != 1 {
		t.Fatalf("second attempt created a session: %d", setup.created)
	}
}

func TestSetupFailureAbortsBeforeTransition(t *testing.T) {
	setup := &fakeSetup{createErr: errors.New("boom")}
	m := newMachine(setup, &fakeSignaler{}, &recordNotifier{}, time.Hour, time.Hour)

	if err := m.Initiate(context.Background(), peer, models.CallTypeVoice); err == nil {
		t.Fatal("expected setup error")
	}
	if m.State() != models.CallIdle {
		t.Fatalf("machine transitioned despite setup failure: %v", m.State())
	}
}

func TestIncomingAcceptFlow(t *testing.T) {
	sig := &fakeSignaler{}
	m := newMachine(&fakeSetup{}, sig, &recordNotifier{}, time.Hour, time.Hour)

	m.HandleIncoming(models.IncomingCallEvent{
		MeetingID:  "meet-9",
		Token:      "tok-9",
		CallerID:   peer.ID,
		CallerName: peer.Username,
		CallType:   models.CallTypeVideo,
	}, false)

	if m.State() != models.CallIncoming {
		t.Fatalf("expected incoming, got %v", m.State())
	}

	if err := m.Accept(); err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if m.State() != models.CallActive {
		t.Fatalf("expected active, got %v", m.State())
	}
	if sig.count(models.EventCallAccepted) != 1 {
		t.Error("caller not notified of accept")
	}

	var p models.CallAcceptedEvent
	json.Unmarshal(sig.bodies[len(sig.bodies)-1], &p)
	if p.MeetingID != "meet-9" || p.CallerID != peer.ID {
		t.Fatalf("accept payload wrong: %+v", p)
	}
}

func TestIncomingRejectResetsToIdle(t *testing.T) {
	sig := &fakeSignaler{}
	m := newMachine(&fakeSetup{}, sig, &recordNotifier{}, time.Hour, time.Hour)

	m.HandleIncoming(models.IncomingCallEvent{MeetingID: "meet-9", CallerID: peer.ID}, false)
	if err := m.Reject(); err != nil {
		t.Fatalf("Reject error: %v", err)
	}

	if m.State() != models.CallIdle {
		t.Fatalf("expected idle after reject, got %v", m.State())
	}
	if sig.count(models.EventCallRejected) != 1 {
		t.Error("caller not notified of reject")
	}
}

func TestIncomingWhileBusyAutoRejected(t *testing.T) {
	sig := &fakeSignaler{}
	m := newMachine(&fakeSetup{}, sig, &recordNotifier{}, time.Hour, time.Hour)

	m.Initiate(context.Background(), peer, models.CallTypeVoice)
	m.HandleIncoming(models.IncomingCallEvent{MeetingID: "meet-2", CallerID: "other"}, false)

	if m.State() != models.CallOutgoing {
		t.Fatalf("busy incoming mutated the existing call: %v", m.State())
	}
	if sig.count(models.EventCallRejected) != 1 {
		t.Error("busy caller left ringing")
	}
}

func TestGroupNoJoinerTimeout(t *testing.T) {
	setup := &fakeSetup{}
	sig := &fakeSignaler{}
	n := &recordNotifier{}
	m := newMachine(setup, sig, n, time.Hour, 50*time.Millisecond)

	m.InitiateGroup(context.Background(), "g1", models.CallTypeVoice)
	if m.State() != models.CallActive {
		t.Fatalf("group call should be live immediately, got %v", m.State())
	}

	m.MediaJoined()
	time.Sleep(120 * time.Millisecond)

	if m.State() != models.CallIdle {
		t.Fatalf("expected auto-end with no joiners, got %v", m.State())
	}
	if !n.has("No one joined the call") {
		t.Error("missing no-joiner notice")
	}
	if setup.endedCount() != 1 {
		t.Error("session not torn down after no-joiner timeout")
	}
}

func TestGroupRemoteJoinCancelsTimer(t *testing.T) {
	n := &recordNotifier{}
	m := newMachine(&fakeSetup{}, &fakeSignaler{}, n, time.Hour, 60*time.Millisecond)

	m.InitiateGroup(context.Background(), "g1", models.CallTypeVoice)
	m.MediaJoined()
	time.Sleep(30 * time.Millisecond) // joins halfway through the window
	m.RemoteJoined()

	time.Sleep(80 * time.Millisecond)
	if m.State() != models.CallActive {
		t.Fatalf("call auto-ended despite a remote participant: %v", m.State())
	}
	if n.has("No one joined the call") {
		t.Fatal("no-joiner notice despite a remote participant")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	setup := &fakeSetup{}
	sig := &fakeSignaler{}
	m := newMachine(setup, sig, &recordNotifier{}, time.Hour, time.Hour)

	m.Initiate(context.Background(), peer, models.CallTypeVoice)
	m.HandleAccepted(models.CallAcceptedEvent{MeetingID: "meet-1"})

	m.End(context.Background())
	m.End(context.Background())

	if m.State() != models.CallIdle {
		t.Fatalf("expected idle, got %v", m.State())
	}
	if sig.count(models.EventCallEnded) != 1 {
		t.Fatalf("end signal sent %d times", sig.count(models.EventCallEnded))
	}
	if setup.endedCount() != 1 {
		t.Fatalf("teardown requested %d times", setup.endedCount())
	}
}

func TestHandleEndedResets(t *testing.T) {
	m := newMachine(&fakeSetup{}, &fakeSignaler{}, &recordNotifier{}, time.Hour, time.Hour)

	m.HandleIncoming(models.IncomingCallEvent{MeetingID: "meet-9", CallerID: peer.ID}, false)
	m.Accept()
	m.HandleEnded()

	if m.State() != models.CallIdle {
		t.Fatalf("expected idle after remote end, got %v", m.State())
	}
	// a fresh call starts from clean state
	if err := m.Initiate(context.Background(), peer, models.CallTypeVoice); err != nil {
		t.Fatalf("machine not reusable after end: %v", err)
	}
}

func TestTogglesOnlyWhileActive(t *testing.T) {
	m := newMachine(&fakeSetup{}, &fakeSignaler{}, &recordNotifier{}, time.Hour, time.Hour)

	if _, err := m.ToggleMute(); err == nil {
		t.Fatal("mute toggled while idle")
	}

	m.HandleIncoming(models.IncomingCallEvent{MeetingID: "m", CallerID: peer.ID}, false)
	m.Accept()

	muted, err := m.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("expected muted true, got %v %v", muted, err)
	}
	if m.State() != models.CallActive {
		t.Fatal("toggle changed the machine state")
	}
}
