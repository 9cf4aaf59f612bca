// Package tcp 提供基于 TCP 的传输层实现
//
// TCP 只提供可靠字节流，加密与多路复用由升级器在其上完成。
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.transport.tcp")

// ID 传输标识
const ID = "tcp"

// Transport TCP 传输层
type Transport struct {
	dialer manet.Dialer

	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    atomic.Bool
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建 TCP 传输层
func New(dialTimeout time.Duration) *Transport {
	return &Transport{
		dialer: manet.Dialer{
			Dialer: net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			},
		},
		listeners: make(map[*listener]struct{}),
	}
}

// ID 返回传输标识
func (t *Transport) ID() string { return ID }

// Protocols 返回处理的 multiaddr 协议
func (t *Transport) Protocols() []int { return []int{ma.P_TCP} }

// CanDial 仅接受 /ip4|ip6/.../tcp/<port>
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	protos := addr.Protocols()
	if len(protos) != 2 {
		return false
	}
	return (protos[0].Code == ma.P_IP4 || protos[0].Code == ma.P_IP6) && protos[1].Code == ma.P_TCP
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("%w: %s", types.ErrNoTransport, raddr)
	}

	conn, err := t.dialer.DialContext(ctx, raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", types.ErrTransport, raddr, err)
	}
	if tc, ok := conn.(interface{ SetNoDelay(bool) error }); ok {
		_ = tc.SetNoDelay(true)
	}
	log.Debug("TCP 拨号成功", "remote", raddr)
	return conn, nil
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !t.CanDial(laddr) {
		return nil, fmt.Errorf("%w: cannot listen on %s", types.ErrNoTransport, laddr)
	}

	ml, err := manet.Listen(laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", types.ErrTransport, laddr, err)
	}
	l := &listener{Listener: ml, owner: t}

	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	log.Info("TCP 监听已启动", "addr", ml.Multiaddr())
	return l, nil
}

// Close 关闭全部监听器
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	ls := make([]*listener, 0, len(t.listeners))
	for l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	for _, l := range ls {
		_ = l.Close()
	}
	return nil
}

func (t *Transport) forget(l *listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// listener 包装 manet.Listener
type listener struct {
	manet.Listener
	owner *Transport
	once  sync.Once
}

func (l *listener) Accept() (net.Conn, error) {
	return l.Listener.Accept()
}

func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		l.owner.forget(l)
		err = l.Listener.Close()
	})
	return err
}
