// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/efchatnet/efrelay/backend/models"
)

// MessageHandler is called for every text or binary frame read from the
// connection.
type MessageHandler func(ctx context.Context, c *Connection, msg []byte)

// OnCloseHandler runs once when the connection goes away.
type OnCloseHandler func(c *Connection, err error)

type Config struct {
	SendBuffer   int
	PingInterval time.Duration
	ReadLimit    int64
}

// Connection is one websocket client. Send is safe for concurrent use and
// never blocks.
type Connection struct {
	id           string
	conn         *websocket.Conn
	config       Config
	authIdentity string
	remoteAddr   string

	mu     sync.RWMutex
	closed bool
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func NewConnection(parentCtx context.Context, conn *websocket.Conn, config Config, authIdentity, remoteAddr string, onMessage MessageHandler, onClose OnCloseHandler) *Connection {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}
	ctx, cancel := context.WithCancel(parentCtx)
	return &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		config:       config,
		authIdentity: authIdentity,
		remoteAddr:   remoteAddr,
		send:         make(chan []byte, config.SendBuffer),
		onMessage:    onMessage,
		onClose:      onClose,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Run pumps the connection until it closes. It blocks.
func (c *Connection) Run() {
	if c.config.ReadLimit > 0 {
		c.conn.SetReadLimit(c.config.ReadLimit)
	}
	go c.writePump()
	jww.DEBUG.Printf("[WS] Connection %s established from %s", c.id, c.remoteAddr)
	c.readPump()
	<-c.done
}

func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		typ, msg, err := c.conn.Read(c.ctx)
		if err != nil {
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c, msg)
		}
	}
}

func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	var ping <-chan time.Time
	if c.config.PingInterval > 0 {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, msg); err != nil {
				writeErr = err
				return
			}
		case <-ping:
			ctx, cancel := context.WithTimeout(c.ctx, c.config.PingInterval)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues evt for the client. It returns false if the event was dropped
// because the queue is full or the connection is closed.
func (c *Connection) Send(evt models.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		jww.ERROR.Printf("[WS] Failed to marshal %s event: %v", evt.Type, err)
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		jww.WARN.Printf("[WS] Send queue full for connection %s, dropping %s", c.id, evt.Type)
		return false
	}
}

// Close shuts the connection down. Only the first call has an effect.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		jww.DEBUG.Printf("[WS] Connection %s closing: %v (status %d)", c.id, err, status)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.cancel()
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c, err)
		}
		close(c.done)
	})
}

// Done is closed once the connection has fully shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) ID() string {
	return c.id
}

// AuthIdentity is the identity proven by the session token, or "" when the
// server runs without authentication.
func (c *Connection) AuthIdentity() string {
	return c.authIdentity
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}
