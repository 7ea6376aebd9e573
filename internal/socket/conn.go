// Package socket owns the persistent bidirectional connection to the
// chat backend. One connection exists per authenticated session:
// connect once a credential exists, disconnect when it is cleared.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/tullo/messenger/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 65536 // 64KB
)

// ErrNotConnected is returned by Emit while the connection is down.
// Socket-only operations surface this to the user instead of queueing.
var ErrNotConnected = errors.New("socket: not connected")

// Handler receives every inbound event. Handlers run sequentially on
// the read pump goroutine, so events keep their arrival order (FIFO per
// event name follows from the single ordered stream).
type Handler func(evt models.Event)

// Conn is the client side of the socket transport.
type Conn struct {
	url string

	mu        sync.RWMutex
	token     string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	handlers  []Handler
	connected bool
	closing   bool
}

func New(socketURL string) *Conn {
	return &Conn{url: socketURL}
}

// OnEvent registers an inbound event handler. Registration must happen
// before Connect.
func (c *Conn) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Connected reports whether a live connection exists. It flips false
// immediately on drop and true again only after a fresh handshake.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect performs the handshake with the given bearer token.
func (c *Conn) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.closing = false
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Conn) dial(ctx context.Context) error {
	endpoint := c.url + "?token=" + url.QueryEscape(c.token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}

	send := make(chan []byte, 256)
	done := make(chan struct{})

	c.mu.Lock()
	c.ws = ws
	c.send = send
	c.done = done
	c.connected = true
	c.mu.Unlock()

	go c.writePump(ws, send, done)
	go c.readPump(ws)
	return nil
}

// Disconnect tears the connection down and suppresses reconnection.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	ws := c.ws
	done := c.done
	c.closing = true
	c.ws = nil
	c.connected = false
	c.mu.Unlock()

	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		ws.Close()
		close(done)
	}
}

// Emit publishes an outbound event. It refuses while disconnected;
// operations with a REST companion fall back there instead.
func (c *Conn) Emit(event string, payload interface{}) error {
	evt, err := models.NewEvent(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("socket: send buffer full")
	}
}

// readPump pumps inbound events from the connection to the handlers
func (c *Conn) readPump(ws *websocket.Conn) {
	defer c.dropped(ws)

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("socket read error: %v", err)
			}
			return
		}

		var evt models.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("socket: dropping malformed event: %v", err)
			continue
		}

		c.mu.RLock()
		handlers := c.handlers
		c.mu.RUnlock()
		for _, h := range handlers {
			h(evt)
		}
	}
}

// writePump pumps outbound frames and keeps the connection alive
func (c *Conn) writePump(ws *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// dropped handles the end of a connection's read pump. Unless the drop
// was an explicit Disconnect, a background redial starts.
func (c *Conn) dropped(ws *websocket.Conn) {
	ws.Close()

	c.mu.Lock()
	if c.ws != ws {
		// already torn down by Disconnect
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.connected = false
	close(c.done)
	closing := c.closing
	c.mu.Unlock()

	if !closing {
		go c.reconnect()
	}
}

func (c *Conn) reconnect() {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // retry until Disconnect

	backoff.Retry(func() error {
		c.mu.RLock()
		closing := c.closing
		c.mu.RUnlock()
		if closing {
			return backoff.Permanent(errors.New("socket: closed"))
		}
		if err := c.dial(context.Background()); err != nil {
			log.Printf("socket redial failed: %v", err)
			return err
		}
		return nil
	}, policy)
}
