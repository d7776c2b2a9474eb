package fakedevice

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	kind int
	data []byte
}

// echoConn sends every text or binary frame back to its peer. Writes go
// through a single pump so the read loop never blocks on the network.
type echoConn struct {
	conn    *websocket.Conn
	sendCh  chan frame
	closeCh chan struct{}
	mu      sync.Mutex
	closed  bool
	writeWg sync.WaitGroup
}

func newEchoConn(conn *websocket.Conn) *echoConn {
	c := &echoConn{
		conn:    conn,
		sendCh:  make(chan frame, 16),
		closeCh: make(chan struct{}),
	}

	c.writeWg.Add(1)
	go c.writePump()

	return c
}

func (c *echoConn) serve() {
	defer c.Drop()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		select {
		case c.sendCh <- frame{kind: kind, data: data}:
		case <-c.closeCh:
			return
		}
	}
}

func (c *echoConn) writePump() {
	defer c.writeWg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case f := <-c.sendCh:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := c.conn.WriteMessage(f.kind, f.data)
			c.mu.Unlock()

			if err != nil {
				return
			}
		}
	}
}

func (c *echoConn) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.closeCh)
	return true
}

// Close performs the closing handshake from the device side.
func (c *echoConn) Close() {
	if !c.shutdown() {
		return
	}
	c.writeWg.Wait()

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.conn.Close()
}

// Drop closes the underlying connection without a close frame.
func (c *echoConn) Drop() {
	if !c.shutdown() {
		return
	}
	c.writeWg.Wait()
	c.conn.Close()
}
