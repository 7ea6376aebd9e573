package models

import "encoding/json"

// Socket event names, outbound (client -> server)
const (
	EventJoinRoom      = "join_room"
	EventJoinRooms     = "join_rooms"
	EventSendMessage   = "send_message"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventMarkRead      = "mark_read"
	EventCallAccepted  = "call_accepted"
	EventCallRejected  = "call_rejected"
	EventCallEnded     = "call_ended"
	EventChatPageEnter = "chat_page_enter"
	EventChatPageLeave = "chat_page_leave"
)

// Socket event names, inbound (server -> client)
const (
	EventMessageReceived     = "message_received"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventMessagesRead        = "messages_read"
	EventNewConversation     = "new_conversation"
	EventConversationUpdated = "conversation_updated"
	EventMessageDeleted      = "message_deleted"
	EventChatCleared         = "chat_cleared"
	EventRoomUpdated         = "room_updated"
	EventMemberJoined        = "member_joined"
	EventMemberRemoved       = "member_removed"
	EventMemberLeft          = "member_left"
	EventIncomingCall        = "incoming_call"
	EventIncomingGroupCall   = "incoming_group_call"
	EventNewNotification     = "new_notification"
)

// Event is the tagged union carried on the wire in both directions.
// Payloads are decoded per event name into the structs below.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type RoomsPayload struct {
	RoomIDs []string `json:"roomIds"`
}

type SendMessagePayload struct {
	RoomID      string `json:"roomId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	FileURL     string `json:"fileUrl,omitempty"`
}

type MarkReadPayload struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

type TypingEvent struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type MessagesReadEvent struct {
	RoomID     string   `json:"roomId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type ChatClearedEvent struct {
	RoomID string `json:"roomId"`
}

type RoomUpdatedEvent struct {
	RoomID         string `json:"roomId"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type MemberEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type IncomingCallEvent struct {
	MeetingID            string `json:"meetingId"`
	Token                string `json:"token"`
	CallerID             string `json:"callerId"`
	CallerName           string `json:"callerName"`
	CallerProfilePicture string `json:"callerProfilePicture,omitempty"`
	CallType             string `json:"callType"`
	APIKey               string `json:"apiKey,omitempty"`
	RoomID               string `json:"roomId,omitempty"` // set for group calls
}

type CallAcceptedEvent struct {
	MeetingID string `json:"meetingId"`
	CallerID  string `json:"callerId,omitempty"`
}

type CallRejectedEvent struct {
	CallerID string `json:"callerId,omitempty"`
}

type CallEndedEvent struct {
	CallerID   string `json:"callerId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
}

type NotificationEvent struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// NewEvent builds an outbound event, marshaling the payload.
func NewEvent(name string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Name: name}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Payload: data}, nil
}
