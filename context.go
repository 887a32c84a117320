package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/syncx"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// Connection is one websocket client. Writes go through an unbounded queue
// so a slow reader never stalls the event fan-out.
type Connection struct {
	conn *websocket.Conn
	send *syncx.UnboundedChan[[]byte]
	done chan struct{}
}

func newConnection(wc *websocket.Conn) *Connection {
	return &Connection{
		conn: wc,
		send: syncx.NewUnboundedChan[[]byte](8),
		done: make(chan struct{}),
	}
}

func (c *Connection) Start() {
	go func() {
		defer close(c.done)
		for x := range c.send.Out() {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, x); err != nil {
				// keep draining so Close does not wait on a dead peer
				continue
			}
		}
	}()
}

func encJson(j any) []byte {
	b, _ := json.Marshal(j)
	return b
}

func (c *Connection) Send(j any) bool {
	return c.send.Send(encJson(j))
}

// Close flushes queued messages and waits for the writer to finish.
func (c *Connection) Close() {
	c.send.Close()
	<-c.done
}

// events streams worker progress to a websocket client until it hangs up.
func (a *App) events(c *gin.Context) {
	wc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer wc.Close()

	conn := newConnection(wc)
	conn.Start()
	defer conn.Close()

	events, cancel := a.worker.Subscribe()
	defer cancel()
	conn.Send(gin.H{"type": "hello", "pending": a.worker.Pending()})

	go func() {
		for e := range events {
			conn.Send(e)
		}
	}()

	for {
		if _, _, err := wc.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
	}
}
