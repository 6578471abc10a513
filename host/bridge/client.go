package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient is one websocket connection
type wsClient struct {
	id     string
	conn   *websocket.Conn
	bridge *Bridge
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(id string, conn *websocket.Conn, b *Bridge) *wsClient {
	return &wsClient{
		id:     id,
		conn:   conn,
		bridge: b,
		sendCh: make(chan []byte, sendQueue),
		done:   make(chan struct{}),
	}
}

// send queues a frame, dropping it when the client cannot keep up
func (c *wsClient) send(frame []byte) {
	select {
	case c.sendCh <- frame:
	case <-c.done:
	default:
		c.bridge.log.WithField("client", c.id).Warn("dropping frame, client too slow")
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.bridge.remove(c)
		c.close()
		c.bridge.log.WithField("client", c.id).Info("websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxReadSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.bridge.log.WithError(err).WithField("client", c.id).Warn("websocket read failed")
			}
			return
		}
		if err := c.bridge.inject(msg); err != nil {
			c.bridge.log.WithError(err).Warn("inject client input")
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
