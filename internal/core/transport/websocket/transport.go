// Package websocket 提供基于 WebSocket 的传输层实现
//
// 地址形式为 /ip4/<ip>/tcp/<port>/ws。每个 WebSocket 连接以二进制消息承载字节流，
// 对上层表现为 net.Conn。
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.transport.websocket")

// ID 传输标识
const ID = "websocket"

var (
	wsComponent = ma.StringCast("/ws")

	// ErrClosed 传输层已关闭
	ErrClosed = fmt.Errorf("%w: websocket transport closed", types.ErrTransport)
)

// Transport WebSocket 传输层
type Transport struct {
	dialer   ws.Dialer
	upgrader ws.Upgrader

	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    atomic.Bool
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输层
func New(dialTimeout time.Duration) *Transport {
	return &Transport{
		dialer: ws.Dialer{
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   32 << 10,
			WriteBufferSize:  32 << 10,
		},
		upgrader: ws.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			// 节点之间没有浏览器同源语义
			CheckOrigin: func(*http.Request) bool { return true },
		},
		listeners: make(map[*listener]struct{}),
	}
}

// ID 返回传输标识
func (t *Transport) ID() string { return ID }

// Protocols 返回处理的 multiaddr 协议
func (t *Transport) Protocols() []int { return []int{ma.P_WS} }

// CanDial 仅接受 /ip4|ip6/.../tcp/<port>/ws
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	protos := addr.Protocols()
	if len(protos) != 3 {
		return false
	}
	return (protos[0].Code == ma.P_IP4 || protos[0].Code == ma.P_IP6) &&
		protos[1].Code == ma.P_TCP && protos[2].Code == ma.P_WS
}

// hostPort 返回 /ws 之前的 TCP 地址对应的 host:port
func hostPort(addr ma.Multiaddr) (string, error) {
	_, host, err := manet.DialArgs(addr.Decapsulate(wsComponent))
	return host, err
}

// Dial 建立出站 WebSocket 连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("%w: %s", types.ErrNoTransport, raddr)
	}
	host, err := hostPort(raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrTransport, raddr, err)
	}

	wsConn, resp, err := t.dialer.DialContext(ctx, "ws://"+host+"/", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", types.ErrTransport, raddr, err)
	}
	log.Debug("WebSocket 拨号成功", "remote", raddr)
	return newConn(wsConn), nil
}

// Listen 启动 HTTP 服务并把升级后的连接交给 Accept
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !t.CanDial(laddr) {
		return nil, fmt.Errorf("%w: cannot listen on %s", types.ErrNoTransport, laddr)
	}

	tcpListener, err := manet.Listen(laddr.Decapsulate(wsComponent))
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", types.ErrTransport, laddr, err)
	}

	l := &listener{
		owner:    t,
		addr:     tcpListener.Multiaddr().Encapsulate(wsComponent),
		incoming: make(chan net.Conn),
		closing:  make(chan struct{}),
	}
	l.server = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	go func() {
		err := l.server.Serve(manet.NetListener(tcpListener))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("WebSocket 服务退出", "addr", l.addr, "error", err)
		}
	}()

	log.Info("WebSocket 监听已启动", "addr", l.addr)
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
