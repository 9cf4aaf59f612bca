package websocket

import (
	"io"
	"net"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// conn 将 WebSocket 消息流适配为 net.Conn
//
// 读：依次消费二进制消息的 reader；写：每次 Write 发送一条二进制消息。
type conn struct {
	*ws.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ net.Conn = (*conn)(nil)

func newConn(c *ws.Conn) *conn {
	return &conn{Conn: c}
}

func (c *conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			mt, r, err := c.NextReader()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != ws.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.WriteMessage(ws.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close 发送关闭帧后关闭底层连接
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		_ = c.WriteControl(ws.CloseMessage, msg, time.Now().Add(100*time.Millisecond))
		err = c.Conn.Close()
	})
	return err
}

func (c *conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
