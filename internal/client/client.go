// Package client assembles the messaging core: one explicitly owned
// object holding the transport, the REST companion, and the chat,
// presence and call components. No module-level singleton; embedders
// construct a Client and inject it where needed.
package client

import (
	"context"
	"encoding/json"
	"log"

	"github.com/tullo/messenger/config"
	"github.com/tullo/messenger/internal/api"
	"github.com/tullo/messenger/internal/auth"
	"github.com/tullo/messenger/internal/call"
	"github.com/tullo/messenger/internal/chat"
	"github.com/tullo/messenger/internal/models"
	"github.com/tullo/messenger/internal/notify"
	"github.com/tullo/messenger/internal/presence"
	"github.com/tullo/messenger/internal/socket"
)

type Client struct {
	cfg      *config.Config
	token    string
	self     models.User
	notifier notify.Notifier

	api  *api.Client
	sock *socket.Conn

	Directory *chat.Directory
	Timeline  *chat.Timeline
	Typing    *chat.TypingTracker
	Presence  *presence.Tracker
	Calls     *call.Machine
}

// New builds the client for one authenticated session. The current
// user's identity comes from the bearer token's claims.
func New(cfg *config.Config, token string, notifier notify.Notifier) (*Client, error) {
	self, err := auth.Identity(token)
	if err != nil {
		return nil, err
	}

	rest := api.New(cfg.API.BaseURL, token, cfg.API.RequestsPerSec, cfg.API.Timeout)
	sock := socket.New(cfg.Socket.URL)
	dir := chat.NewDirectory()

	c := &Client{
		cfg:       cfg,
		token:     token,
		self:      self,
		notifier:  notifier,
		api:       rest,
		sock:      sock,
		Directory: dir,
		Timeline:  chat.NewTimeline(rest, sock, dir, notifier, self, cfg.Chat.PageSize, cfg.Chat.ReadDebounce),
		Typing:    chat.NewTypingTracker(sock, cfg.Chat.TypingDebounce),
		Presence:  presence.NewTracker(rest, cfg.Presence.PollInterval),
		Calls:     call.NewMachine(rest, sock, notifier, self, cfg.Call.RingTimeout, cfg.Call.NoJoinerTimeout),
	}
	sock.OnEvent(c.handleEvent)
	return c, nil
}

// Self returns the authenticated user.
func (c *Client) Self() models.User {
	return c.self
}

// Connected reports the transport state.
func (c *Client) Connected() bool {
	return c.sock.Connected()
}

// Connect establishes the socket, announces chat-page presence, loads
// the conversation directory and starts presence polling. A failed
// directory load degrades to an empty list with a user notice.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.sock.Connect(ctx, c.token); err != nil {
		return err
	}
	c.sock.Emit(models.EventChatPageEnter, nil)

	convs, err := c.api.Conversations(ctx)
	if err != nil {
		c.notifier.Error("Failed to load conversations")
	} else {
		c.Directory.Replace(convs)
		ids := make([]string, 0, len(convs))
		for _, conv := range convs {
			if conv.ID != "" {
				ids = append(ids, conv.ID)
			}
		}
		if len(ids) > 0 {
			c.sock.Emit(models.EventJoinRooms, models.RoomsPayload{RoomIDs: ids})
		}
	}

	c.Presence.Start()
	return nil
}

// Disconnect tears the session down: leave the chat page, stop every
// timer and poller, end any live call, close the socket.
func (c *Client) Disconnect() {
	c.sock.Emit(models.EventChatPageLeave, nil)
	c.Calls.End(context.Background())
	c.Timeline.Close()
	c.Typing.Close()
	c.Presence.Stop()
	c.sock.Disconnect()
}

// OpenConversation switches the active conversation across the
// directory, timeline and typing tracker, and joins its room.
func (c *Client) OpenConversation(ctx context.Context, conv models.Conversation) error {
	c.Directory.SetActive(conv.ID)
	c.Typing.SetActive(conv.ID)
	if conv.ID != "" {
		c.sock.Emit(models.EventJoinRoom, models.RoomPayload{RoomID: conv.ID})
	}
	return c.Timeline.Open(ctx, conv)
}

// SetVisible gates presence polling on page visibility.
func (c *Client) SetVisible(visible bool) {
	c.Presence.SetVisible(visible)
}

// handleEvent routes the inbound event union. It runs on the socket
// read pump, so events are handled in arrival order; every handler
// tolerates missing context (idempotent upserts), since ordering across
// event names is not guaranteed.
func (c *Client) handleEvent(evt models.Event) {
	switch evt.Name {
	case models.EventMessageReceived:
		var msg models.Message
		if !decode(evt, &msg) {
			return
		}
		if msg.Sender.ID == c.self.ID {
			c.Directory.ApplyOutbound(msg)
		} else {
			c.Directory.ApplyInbound(msg)
		}
		c.Timeline.ReconcileInbound(msg)

	case models.EventUserTyping:
		var p models.TypingEvent
		if decode(evt, &p) {
			c.Typing.ApplyRemote(p, true)
		}

	case models.EventUserStoppedTyping:
		var p models.TypingEvent
		if decode(evt, &p) {
			c.Typing.ApplyRemote(p, false)
		}

	case models.EventMessagesRead:
		var p models.MessagesReadEvent
		if decode(evt, &p) {
			c.Timeline.ApplyReadEvent(p)
		}

	case models.EventNewConversation:
		var conv models.Conversation
		if decode(evt, &conv) {
			c.Directory.Upsert(conv)
			if conv.ID != "" {
				c.sock.Emit(models.EventJoinRoom, models.RoomPayload{RoomID: conv.ID})
			}
		}

	case models.EventConversationUpdated:
		var conv models.Conversation
		if decode(evt, &conv) {
			c.Directory.Upsert(conv)
		}

	case models.EventMessageDeleted:
		var p models.MessageDeletedEvent
		if decode(evt, &p) {
			c.Timeline.ApplyDeleted(p)
		}

	case models.EventChatCleared:
		var p models.ChatClearedEvent
		if decode(evt, &p) {
			c.Timeline.ApplyCleared(p.RoomID)
			c.Directory.ClearLastMessage(p.RoomID)
		}

	case models.EventRoomUpdated:
		var p models.RoomUpdatedEvent
		if decode(evt, &p) {
			c.Directory.ApplyRoomUpdate(p)
		}

	case models.EventMemberJoined:
		var p models.MemberEvent
		if decode(evt, &p) {
			c.Directory.ApplyMemberChange(p, true)
			if p.Username != "" {
				c.notifier.Info(p.Username + " joined the group")
			}
		}

	case models.EventMemberRemoved, models.EventMemberLeft:
		var p models.MemberEvent
		if !decode(evt, &p) {
			return
		}
		if p.UserID == c.self.ID {
			c.Directory.RemoveOnLeave(p.RoomID)
			c.Typing.SetActive("")
			if evt.Name == models.EventMemberRemoved {
				c.notifier.Info("You were removed from the group")
			}
		} else {
			c.Directory.ApplyMemberChange(p, false)
			if p.Username != "" {
				c.notifier.Info(p.Username + " left the group")
			}
		}

	case models.EventIncomingCall:
		var p models.IncomingCallEvent
		if decode(evt, &p) {
			c.Calls.HandleIncoming(p, false)
		}

	case models.EventIncomingGroupCall:
		var p models.IncomingCallEvent
		if decode(evt, &p) {
			c.Calls.HandleIncoming(p, true)
		}

	case models.EventCallAccepted:
		var p models.CallAcceptedEvent
		if decode(evt, &p) {
			c.Calls.HandleAccepted(p)
		}

	case models.EventCallRejected:
		c.Calls.HandleRejected()

	case models.EventCallEnded:
		c.Calls.HandleEnded()

	case models.EventNewNotification:
		var p models.NotificationEvent
		if decode(evt, &p) {
			c.notifier.Info(p.Message)
		}
	}
}

func decode(evt models.Event, out interface{}) bool {
	if err := json.Unmarshal(evt.Payload, out); err != nil {
		log.Printf("dropping malformed %s payload: %v", evt.Name, err)
		return false
	}
	return true
}
