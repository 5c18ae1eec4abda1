package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler is invoked for every complete inbound frame.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// CloseHandler is invoked exactly once when the connection terminates.
type CloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
	SendBuffer  int
}

// Connection wraps a single WebSocket connection with read/write pumps.
// Send is safe for concurrent use; delivery is best-effort and a send to a
// closing connection is dropped rather than blocking the caller.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   CloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}

	wg.Add(1)
	return &Connection{
		id:     id,
		conn:   conn,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		cancelRead()
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "shutting down")
			return
		}
	}
}

// Send queues a message for delivery. A message to a connection that is
// closing, or whose send buffer is full, is silently dropped. The send
// channel is never closed, so Send stays safe against a concurrent Close.
func (c *Connection) Send(message []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	case <-c.ctx.Done():
		return false
	default:
		c.logger.Warn("send buffer full, dropping message")
		return false
	}
}

// Close shuts the connection down and fires the close handler exactly once.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Info("connection closing", slog.Any("reason", err))

		c.cancel()
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed once the connection has fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler CloseHandler) {
	c.onClose = handler
}
