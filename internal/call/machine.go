// Package call negotiates voice/video calls into live media sessions.
// The media pipeline itself belongs to the external conferencing
// collaborator; this machine owns only the signaling: offer, accept,
// reject, timeout, end.
package call

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tullo/messenger/internal/api"
	"github.com/tullo/messenger/internal/models"
	"github.com/tullo/messenger/internal/notify"
)

// ErrCallInProgress rejects a call attempt while the machine is not
// idle. Calls are serialized; the UI disables call buttons, this is the
// backstop.
var ErrCallInProgress = errors.New("call: another call is in progress")

// Setup obtains and tears down server-side media sessions.
type Setup interface {
	CreateCallRoom(ctx context.Context, req api.CallRoomRequest) (*models.CallSession, error)
	EndCallSession(ctx context.Context, meetingID string) error
}

// Signaler publishes call signaling events to the counterpart(s).
type Signaler interface {
	Emit(event string, payload interface{}) error
}

// Machine is the per-client call signaling state machine. Exactly one
// call occupies it at a time.
type Machine struct {
	setup           Setup
	sig             Signaler
	notifier        notify.Notifier
	self            models.User
	ringTimeout     time.Duration
	noJoinerTimeout time.Duration

	mu           sync.Mutex
	state        models.CallState
	session      *models.CallSession
	outgoing     bool
	remoteJoined bool
	muted        bool
	videoOff     bool
	ringTimer    *time.Timer
	groupTimer   *time.Timer
}

func NewMachine(setup Setup, sig Signaler, notifier notify.Notifier, self models.User, ringTimeout, noJoinerTimeout time.Duration) *Machine {
	return &Machine{
		setup:           setup,
		sig:             sig,
		notifier:        notifier,
		self:            self,
		ringTimeout:     ringTimeout,
		noJoinerTimeout: noJoinerTimeout,
		state:           models.CallIdle,
	}
}

// State returns the current signaling state.
func (m *Machine) State() models.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the active session handle, if any.
func (m *Machine) Session() (models.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return models.CallSession{}, false
	}
	return *m.session, true
}

// Initiate starts a 1:1 call: create the media session, ring the peer
// (the server relays incoming_call), and wait for the answer with a
// ring timeout. Session-creation failure aborts before any transition.
func (m *Machine) Initiate(ctx context.Context, peer models.User, callType string) error {
	m.mu.Lock()
	if m.state != models.CallIdle {
		m.mu.Unlock()
		return ErrCallInProgress
	}
	m.mu.Unlock()

	session, err := m.setup.CreateCallRoom(ctx, api.CallRoomRequest{
		CalleeID: peer.ID,
		CallType: callType,
	})
	if err != nil {
		m.notifier.Error("Could not start the call")
		return err
	}

	m.mu.Lock()
	if m.state != models.CallIdle {
		// an incoming call won the race; release the unused session
		m.mu.Unlock()
		m.teardown(session.MeetingID)
		return ErrCallInProgress
	}
	session.Peer = &peer
	m.session = session
	m.state = models.CallOutgoing
	m.outgoing = true
	m.ringTimer = time.AfterFunc(m.ringTimeout, m.onRingTimeout)
	m.mu.Unlock()
	return nil
}

// InitiateGroup starts a group call. There is no single callee to wait
// for, so the call is live immediately; a no-joiner timer starts once
// the local participant has joined the media session.
func (m *Machine) InitiateGroup(ctx context.Context, roomID, callType string) error {
	m.mu.Lock()
	if m.state != models.CallIdle {
		m.mu.Unlock()
		return ErrCallInProgress
	}
	m.mu.Unlock()

	session, err := m.setup.CreateCallRoom(ctx, api.CallRoomRequest{
		RoomID:   roomID,
		CallType: callType,
		IsGroup:  true,
	})
	if err != nil {
		m.notifier.Error("Could not start the call")
		return err
	}

	m.mu.Lock()
	if m.state != models.CallIdle {
		m.mu.Unlock()
		m.teardown(session.MeetingID)
		return ErrCallInProgress
	}
	m.session = session
	m.state = models.CallActive
	m.outgoing = true
	m.mu.Unlock()
	return nil
}

func (m *Machine) onRingTimeout() {
	m.mu.Lock()
	if m.state != models.CallOutgoing || m.session == nil {
		m.mu.Unlock()
		return
	}
	session := *m.session
	m.state = models.CallEnded
	m.resetLocked()
	m.mu.Unlock()

	m.notifier.Info("User unavailable")
	if session.Peer != nil {
		m.sig.Emit(models.EventCallEnded, models.CallEndedEvent{ReceiverID: session.Peer.ID})
	}
	m.teardown(session.MeetingID)
}

// HandleIncoming places the machine in the ringing state. A call
// arriving while another occupies the machine is answered with
// call_rejected so the remote caller is not left ringing; the existing
// call is untouched.
func (m *Machine) HandleIncoming(evt models.IncomingCallEvent, isGroup bool) {
	m.mu.Lock()
	if m.state != models.CallIdle {
		m.mu.Unlock()
		m.sig.Emit(models.EventCallRejected, models.CallRejectedEvent{CallerID: evt.CallerID})
		return
	}
	m.session = &models.CallSession{
		MeetingID: evt.MeetingID,
		Token:     evt.Token,
		APIKey:    evt.APIKey,
		CallType:  evt.CallType,
		IsGroup:   isGroup,
		RoomID:    evt.RoomID,
		Peer: &models.User{
			ID:             evt.CallerID,
			Username:       evt.CallerName,
			ProfilePicture: evt.CallerProfilePicture,
		},
	}
	m.state = models.CallIncoming
	m.outgoing = false
	m.mu.Unlock()
}

// Accept answers a ringing call and notifies the caller so their ring
// timer is cancelled. The callee has no timeout of its own; it waits
// for user action.
func (m *Machine) Accept() error {
	m.mu.Lock()
	if m.state != models.CallIncoming || m.session == nil {
		m.mu.Unlock()
		return errors.New("call: no incoming call to accept")
	}
	session := *m.session
	m.state = models.CallActive
	m.mu.Unlock()

	return m.sig.Emit(models.EventCallAccepted, models.CallAcceptedEvent{
		MeetingID: session.MeetingID,
		CallerID:  session.Peer.ID,
	})
}

// Reject declines a ringing call and resets to idle.
func (m *Machine) Reject() error {
	m.mu.Lock()
	if m.state != models.CallIncoming || m.session == nil {
		m.mu.Unlock()
		return errors.New("call: no incoming call to reject")
	}
	callerID := m.session.Peer.ID
	m.state = models.CallEnded
	m.resetLocked()
	m.mu.Unlock()

	return m.sig.Emit(models.EventCallRejected, models.CallRejectedEvent{CallerID: callerID})
}

// HandleAccepted transitions an outgoing call to active and cancels the
// ring timer.
func (m *Machine) HandleAccepted(evt models.CallAcceptedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.CallOutgoing {
		return
	}
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
	m.state = models.CallActive
}

// HandleRejected ends an outgoing call after the callee declined.
func (m *Machine) HandleRejected() {
	m.mu.Lock()
	if m.state != models.CallOutgoing || m.session == nil {
		m.mu.Unlock()
		return
	}
	session := *m.session
	m.state = models.CallEnded
	m.resetLocked()
	m.mu.Unlock()

	m.notifier.Info("Call declined")
	m.teardown(session.MeetingID)
}

// HandleEnded processes the counterpart's end signal. Ending an
// already-ended call is a no-op.
func (m *Machine) HandleEnded() {
	m.mu.Lock()
	if m.state == models.CallIdle {
		m.mu.Unlock()
		return
	}
	m.state = models.CallEnded
	m.resetLocked()
	m.mu.Unlock()

	m.notifier.Info("Call ended")
}

// MediaJoined marks the local participant as joined to the media
// session. For a group call with no remote participants yet, the
// no-joiner timer starts.
func (m *Machine) MediaJoined() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.CallActive || m.session == nil || !m.session.IsGroup {
		return
	}
	if m.remoteJoined || m.groupTimer != nil {
		return
	}
	m.groupTimer = time.AfterFunc(m.noJoinerTimeout, m.onNoJoiner)
}

// RemoteJoined cancels the no-joiner timer the instant any remote
// participant is observed.
func (m *Machine) RemoteJoined() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteJoined = true
	if m.groupTimer != nil {
		m.groupTimer.Stop()
		m.groupTimer = nil
	}
}

func (m *Machine) onNoJoiner() {
	m.mu.Lock()
	if m.state != models.CallActive || m.session == nil || m.remoteJoined {
		m.mu.Unlock()
		return
	}
	session := *m.session
	m.state = models.CallEnded
	m.resetLocked()
	m.mu.Unlock()

	m.notifier.Info("No one joined the call")
	m.sig.Emit(models.EventCallEnded, models.CallEndedEvent{RoomID: session.RoomID})
	m.teardown(session.MeetingID)
}

// End hangs up: notify the counterpart(s), request server-side session
// teardown, and reset to a clean idle. Teardown failure is logged and
// never blocks the local reset. Idempotent.
func (m *Machine) End(ctx context.Context) {
	m.mu.Lock()
	if m.state == models.CallIdle || m.session == nil {
		m.mu.Unlock()
		return
	}
	session := *m.session
	outgoing := m.outgoing
	m.state = models.CallEnded
	m.resetLocked()
	m.mu.Unlock()

	evt := models.CallEndedEvent{}
	switch {
	case session.IsGroup:
		evt.RoomID = session.RoomID
	case outgoing && session.Peer != nil:
		evt.ReceiverID = session.Peer.ID
	case session.Peer != nil:
		evt.CallerID = session.Peer.ID
	}
	m.sig.Emit(models.EventCallEnded, evt)

	if err := m.setup.EndCallSession(ctx, session.MeetingID); err != nil {
		log.Printf("call session teardown failed: %v", err)
	}
}

// ToggleMute flips the microphone while a call is active. No state
// transition.
func (m *Machine) ToggleMute() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.CallActive {
		return false, errors.New("call: not active")
	}
	m.muted = !m.muted
	return m.muted, nil
}

// ToggleVideo flips the camera while a call is active.
func (m *Machine) ToggleVideo() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.CallActive {
		return false, errors.New("call: not active")
	}
	m.videoOff = !m.videoOff
	return !m.videoOff, nil
}

// resetLocked returns the machine to a clean idle so a subsequent call
// starts fresh. Both timers are cancelled; they must never fire against
// stale state.
func (m *Machine) resetLocked() {
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
	if m.groupTimer != nil {
		m.groupTimer.Stop()
		m.groupTimer = nil
	}
	m.session = nil
	m.outgoing = false
	m.remoteJoined = false
	m.muted = false
	m.videoOff = false
	m.state = models.CallIdle
}

func (m *Machine) teardown(meetingID string) {
	if err := m.setup.EndCallSession(context.Background(), meetingID); err != nil {
		log.Printf("call session teardown failed: %v", err)
	}
}
