package metrics

import (
	"net"

	"github.com/prometheus/client_golang/prometheus"
)

// meteredConn 统计读写字节数的连接
type meteredConn struct {
	net.Conn
	in  prometheus.Counter
	out prometheus.Counter
}

// WrapConn 包装连接以统计字节数，m 为 nil 时原样返回
func (m *Metrics) WrapConn(c net.Conn) net.Conn {
	if m == nil {
		return c
	}
	return &meteredConn{
		Conn: c,
		in:   m.bytes.WithLabelValues("in"),
		out:  m.bytes.WithLabelValues("out"),
	}
}

func (c *meteredConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.in.Add(float64(n))
	return n, err
}

func (c *meteredConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.out.Add(float64(n))
	return n, err
}
