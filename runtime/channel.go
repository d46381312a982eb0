package runtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/gorilla/websocket"
)

// WSChannel adapts one websocket connection to contract.Channel. Outbound
// frames go through a buffered queue drained by a single writer goroutine,
// so Push never blocks a delivery path on a slow device; a full queue
// drops the frame, best-effort.
type WSChannel struct {
	log          *slog.Logger
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func NewWSChannel(log *slog.Logger, conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *WSChannel {
	ch := &WSChannel{
		log:          log,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go ch.writePump()
	return ch
}

// Push queues a frame for the writer goroutine.
func (c *WSChannel) Push(f domain.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errors.ErrChannelClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.log.Warn("outbound queue full, frame dropped", "frame_type", f.Type)
		return errors.ErrChannelClosed
	}
}

// Close sends a close control frame and tears the connection down. Safe to
// call from any goroutine, any number of times.
func (c *WSChannel) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.writeTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	})
}

// writePump is the sole writer on the underlying connection.
func (c *WSChannel) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed, closing channel", "error", err)
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		}
	}
}
