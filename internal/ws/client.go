package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Client is one websocket connection of one authenticated user.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte

	mu          sync.Mutex
	rooms       map[int64]struct{} // joined room ids
	apptRooms   map[int64]int64    // appointmentID -> roomID, filled on join
	closed      bool
	closeReason string
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn:      conn,
		info:      info,
		send:      make(chan []byte, sendBufferSize),
		rooms:     make(map[int64]struct{}),
		apptRooms: make(map[int64]int64),
	}
}

// UserID reports the authenticated user behind the connection.
func (c *Client) UserID() int64 {
	return c.info.UserID
}

func (c *Client) rememberRoom(roomID int64) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) joinedRooms() map[int64]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]struct{}, len(c.rooms))
	for id := range c.rooms {
		out[id] = struct{}{}
	}
	return out
}

func (c *Client) bindAppointment(appointmentID, roomID int64) {
	c.mu.Lock()
	c.apptRooms[appointmentID] = roomID
	c.mu.Unlock()
}

func (c *Client) roomForAppointment(appointmentID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roomID, ok := c.apptRooms[appointmentID]
	return roomID, ok
}

// sendEvent marshals and enqueues one event for this connection only.
func (c *Client) sendEvent(event string, data any) {
	if payload := marshalEvent(event, data); payload != nil {
		c.enqueue(payload)
	}
}

// enqueue hands a frame to the write pump without blocking the caller. A
// client that cannot drain its buffer is dropped. The mutex orders enqueue
// against close: broadcasts may still target a client between its close and
// its removal from the hub, and a send on the closed channel would panic.
func (c *Client) enqueue(payload []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- payload:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		log.Warn().Str("conn_id", c.info.ConnID).Int64("user_id", c.info.UserID).Msg("client send buffer full, dropping connection")
		c.close("send buffer overflow")
	}
}

func (c *Client) close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeReason = reason
	close(c.send)
}

// writePump owns all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("conn_id", c.info.ConnID).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
