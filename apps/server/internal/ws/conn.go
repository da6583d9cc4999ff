package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"
)

type outbound struct {
	messageType int
	data        []byte
}

type conn struct {
	id     uuid.UUID
	gw     *Gateway
	ws     *websocket.Conn
	remote string
	send   chan outbound

	// inflight bounds the frames being handled concurrently.
	inflight *semaphore.Weighted

	// ctx ends when the connection goes away.
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *conn) readPump() {
	defer func() {
		c.cancel()
		c.gw.remove(c)
		c.gw.wg.Done()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// ReadMessage blocks; closing the socket on cancel unblocks it.
	stop := context.AfterFunc(c.ctx, func() { _ = c.ws.Close() })
	defer stop()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.gw.log.Warn().Err(err).Str("conn", c.id.String()).Msg("read failed")
			}
			return
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		if err := c.inflight.Acquire(c.ctx, 1); err != nil {
			return
		}
		go func() {
			defer c.inflight.Release(1)
			c.handle(messageType, data)
		}()
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		c.gw.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(msg.messageType, msg.data); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// enqueue hands a frame to the write pump. It gives up once the connection is
// gone.
func (c *conn) enqueue(messageType int, data []byte) bool {
	select {
	case c.send <- outbound{messageType: messageType, data: data}:
		return true
	case <-c.ctx.Done():
		return false
	}
}
