package models

// Call types
const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

// CallState is the call signaling machine state.
type CallState int

const (
	CallIdle CallState = iota
	CallOutgoing
	CallIncoming
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallOutgoing:
		return "outgoing"
	case CallIncoming:
		return "incoming"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	}
	return "unknown"
}

// CallSession is the handle to a live media session obtained from the
// conferencing collaborator. At most one exists per client.
type CallSession struct {
	MeetingID string `json:"meetingId"`
	Token     string `json:"token"`
	APIKey    string `json:"apiKey,omitempty"`
	CallType  string `json:"callType"`
	IsGroup   bool   `json:"isGroup"`
	RoomID    string `json:"roomId,omitempty"`
	Peer      *User  `json:"peer,omitempty"`
}
