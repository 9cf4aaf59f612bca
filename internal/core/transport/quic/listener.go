package quic

import (
	"context"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"
)

// streamAcceptTimeout 连接建立后等待对端打开首条流的时间
const streamAcceptTimeout = 10 * time.Second

// listener 接收 QUIC 连接并等待其首条流
type listener struct {
	owner *Transport
	ql    *quic.Listener
	addr  ma.Multiaddr

	ctx    context.Context
	cancel context.CancelFunc

	incoming  chan net.Conn
	closeOnce sync.Once
}

func newListener(owner *Transport, ql *quic.Listener, addr ma.Multiaddr) *listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		owner:    owner,
		ql:       ql,
		addr:     addr,
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan net.Conn),
	}
	go l.acceptLoop()
	return l
}

func (l *listener) acceptLoop() {
	for {
		qconn, err := l.ql.Accept(l.ctx)
		if err != nil {
			return
		}
		go l.awaitStream(qconn)
	}
}

// awaitStream 等待对端打开首条流，慢连接不阻塞其他连接
func (l *listener) awaitStream(qconn quic.Connection) {
	ctx, cancel := context.WithTimeout(l.ctx, streamAcceptTimeout)
	defer cancel()

	str, err := qconn.AcceptStream(ctx)
	if err != nil {
		_ = qconn.CloseWithError(0, "no stream")
		return
	}
	c := newStreamConn(qconn, str)
	select {
	case l.incoming <- c:
	case <-l.ctx.Done():
		_ = c.Close()
	}
}

// Accept 返回下一个入站连接
func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

// Multiaddr 返回实际监听地址
func (l *listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 停止接收连接
func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		l.owner.forget(l)
		err = l.ql.Close()
	})
	return err
}
