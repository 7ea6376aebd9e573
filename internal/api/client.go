// Package api is the REST companion of the socket transport. It covers
// the operations that have a request/response path: directory load,
// message pages, direct-chat materialization, read/delete/clear
// fallbacks, presence polls and call session setup/teardown.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tullo/messenger/internal/models"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	// bounds client-side fan-out, e.g. the per-id read-receipt fallback
	limiter *rate.Limiter
}

func New(baseURL, token string, requestsPerSec int, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec*2),
	}
}

// envelope is the common part of every response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e envelope) ok() bool { return e.Success }

func (e envelope) reason() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

type response interface {
	ok() bool
	reason() string
}

// do performs one request and decodes the JSON envelope. Non-2xx and
// success:false are both recoverable failures for the caller.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	env, _ := out.(response)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, reasonOf(env))
	}
	if env != nil && !env.ok() {
		return fmt.Errorf("%s %s: %s", method, path, reasonOf(env))
	}
	return nil
}

func reasonOf(env response) string {
	if env == nil {
		return "request failed"
	}
	if r := env.reason(); r != "" {
		return r
	}
	return "request failed"
}

type conversationsResponse struct {
	envelope
	Conversations []models.Conversation `json:"conversations"`
}

// Conversations fetches the full conversation list.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var out conversationsResponse
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

type messagesResponse struct {
	envelope
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// Messages fetches one page of a conversation's messages, most recent
// first. The second return reports whether older pages remain.
func (c *Client) Messages(ctx context.Context, roomID string, page, limit int) ([]models.Message, bool, error) {
	var out messagesResponse
	path := fmt.Sprintf("/conversations/%s/messages?page=%d&limit=%d", roomID, page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, false, err
	}
	return out.Messages, out.HasMore, nil
}

type directResponse struct {
	envelope
	Conversation models.Conversation `json:"conversation"`
}

// CreateDirect materializes a placeholder direct chat with the peer.
func (c *Client) CreateDirect(ctx context.Context, peerID string) (*models.Conversation, error) {
	var out directResponse
	body := map[string]string{"userId": peerID}
	if err := c.do(ctx, http.MethodPost, "/direct", body, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

// MarkMessageRead is the REST fallback for read receipts, one call per
// message id.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	var out envelope
	return c.do(ctx, http.MethodPut, "/messages/"+messageID+"/read", nil, &out)
}

// DeleteMessage deletes a single message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	var out envelope
	return c.do(ctx, http.MethodDelete, "/messages/"+messageID, nil, &out)
}

// ClearChat removes every message of a conversation.
func (c *Client) ClearChat(ctx context.Context, roomID string) error {
	var out envelope
	return c.do(ctx, http.MethodDelete, "/conversations/"+roomID+"/messages", nil, &out)
}

type onlineUsersResponse struct {
	envelope
	models.PresenceSnapshot
}

// OnlineUsers fetches the current presence snapshot.
func (c *Client) OnlineUsers(ctx context.Context) (*models.PresenceSnapshot, error) {
	var out onlineUsersResponse
	if err := c.do(ctx, http.MethodGet, "/online-users", nil, &out); err != nil {
		return nil, err
	}
	return &out.PresenceSnapshot, nil
}

// CallRoomRequest describes the session to set up. Exactly one of
// CalleeID (1:1) or RoomID (group) is set.
type CallRoomRequest struct {
	CalleeID string `json:"calleeId,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	CallType string `json:"callType"`
	IsGroup  bool   `json:"isGroup"`
}

type callRoomResponse struct {
	envelope
	MeetingID string `json:"meetingId"`
	Token     string `json:"token"`
	APIKey    string `json:"apiKey,omitempty"`
}

// CreateCallRoom asks the conferencing collaborator for a media session
// handle. The server notifies the callee(s) over the socket.
func (c *Client) CreateCallRoom(ctx context.Context, req CallRoomRequest) (*models.CallSession, error) {
	var out callRoomResponse
	if err := c.do(ctx, http.MethodPost, "/calls/create-room", req, &out); err != nil {
		return nil, err
	}
	return &models.CallSession{
		MeetingID: out.MeetingID,
		Token:     out.Token,
		APIKey:    out.APIKey,
		CallType:  req.CallType,
		IsGroup:   req.IsGroup,
		RoomID:    req.RoomID,
	}, nil
}

// EndCallSession tears down the server-side media session.
func (c *Client) EndCallSession(ctx context.Context, meetingID string) error {
	var out envelope
	body := map[string]string{"meetingId": meetingID}
	return c.do(ctx, http.MethodPost, "/calls/end-session", body, &out)
}
