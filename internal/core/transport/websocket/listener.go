package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// listener 通过 HTTP 升级接收 WebSocket 连接
type listener struct {
	owner  *Transport
	server *http.Server
	addr   ma.Multiaddr

	incoming  chan net.Conn
	closing   chan struct{}
	closeOnce sync.Once
}

// ServeHTTP 升级请求并等待 Accept 取走连接
func (l *listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := l.owner.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		return
	}
	c := newConn(wsConn)

	select {
	case l.incoming <- c:
	case <-l.closing:
		_ = c.Close()
	case <-r.Context().Done():
		_ = c.Close()
	}
}

// Accept 返回下一个入站连接
func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closing:
		return nil, net.ErrClosed
	}
}

// Multiaddr 返回实际监听地址
func (l *listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 停止 HTTP 服务
func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		l.owner.forget(l)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err = l.server.Shutdown(ctx); err != nil {
			err = l.server.Close()
		}
		log.Debug("WebSocket 监听已关闭", "addr", l.addr)
	})
	return err
}
