package handlers

import (
	"errors"
	"log"
	"pong-match-service/game"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
	maxMessageSize = 4096
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsConn adapts a fiber websocket to game.Conn. All writes go through writePump;
// Send and Ping only enqueue and never block the caller.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte
	ping chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		ping:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) Send(msg game.Outbound) error {
	data, err := game.EncodeOutbound(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		// slow reader; state frames are superseded by the next tick anyway
		return errSendBufferFull
	}
}

func (c *wsConn) Ping() error {
	if !c.IsOpen() {
		return errConnClosed
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *wsConn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *wsConn) writePump() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-c.ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
				log.Printf("[WS] close frame: %v", err)
			}
			return
		}
	}
}
