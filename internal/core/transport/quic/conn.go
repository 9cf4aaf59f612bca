package quic

import (
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// streamConn 把一条 QUIC 连接及其唯一的流适配为 net.Conn
type streamConn struct {
	qconn quic.Connection
	str   quic.Stream
	once  sync.Once
}

var _ net.Conn = (*streamConn)(nil)

func newStreamConn(qconn quic.Connection, str quic.Stream) *streamConn {
	return &streamConn{qconn: qconn, str: str}
}

func (c *streamConn) Read(p []byte) (int, error)  { return c.str.Read(p) }
func (c *streamConn) Write(p []byte) (int, error) { return c.str.Write(p) }

// Close 关闭流并关闭整条 QUIC 连接
func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.str.Close()
		err = c.qconn.CloseWithError(0, "")
	})
	return err
}

func (c *streamConn) LocalAddr() net.Addr  { return c.qconn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.qconn.RemoteAddr() }

func (c *streamConn) SetDeadline(t time.Time) error      { return c.str.SetDeadline(t) }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return c.str.SetReadDeadline(t) }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.str.SetWriteDeadline(t) }
