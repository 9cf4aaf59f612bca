// Package quic 提供基于 QUIC 的传输层实现
//
// 地址形式为 /ip4/<ip>/udp/<port>/quic-v1。每条 QUIC 连接只使用一条双向流，
// 对上层表现为 net.Conn；节点身份认证与多路复用仍由升级器完成，
// QUIC 自带的 TLS 只使用临时证书保护链路。
package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.transport.quic")

// ID 传输标识
const ID = "quic"

var (
	quicComponent = ma.StringCast("/quic-v1")

	// ErrClosed 传输层已关闭
	ErrClosed = fmt.Errorf("%w: quic transport closed", types.ErrTransport)
)

// Transport QUIC 传输层
//
// 首个监听的 UDP socket 同时用于拨号。
type Transport struct {
	serverTLS *tls.Config
	clientTLS *tls.Config
	config    *quic.Config

	mu        sync.Mutex
	closed    bool
	dialer    *quic.Transport
	sockets   []*quic.Transport
	listeners map[*listener]struct{}
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建 QUIC 传输层
func New(dialTimeout time.Duration) (*Transport, error) {
	serverTLS, clientTLS, err := generateTLSConfigs()
	if err != nil {
		return nil, err
	}
	return &Transport{
		serverTLS: serverTLS,
		clientTLS: clientTLS,
		config: &quic.Config{
			HandshakeIdleTimeout: dialTimeout,
			MaxIdleTimeout:       2 * time.Minute,
			KeepAlivePeriod:      15 * time.Second,
		},
		listeners: make(map[*listener]struct{}),
	}, nil
}

// ID 返回传输标识
func (t *Transport) ID() string { return ID }

// Protocols 返回处理的 multiaddr 协议
func (t *Transport) Protocols() []int { return []int{ma.P_QUIC_V1} }

// CanDial 仅接受 /ip4|ip6/.../udp/<port>/quic-v1
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	protos := addr.Protocols()
	if len(protos) != 3 {
		return false
	}
	return (protos[0].Code == ma.P_IP4 || protos[0].Code == ma.P_IP6) &&
		protos[1].Code == ma.P_UDP && protos[2].Code == ma.P_QUIC_V1
}

func udpAddr(addr ma.Multiaddr) (*net.UDPAddr, error) {
	na, err := manet.ToNetAddr(addr.Decapsulate(quicComponent))
	if err != nil {
		return nil, err
	}
	ua, ok := na.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("not a udp address: %s", addr)
	}
	return ua, nil
}

// dialTransport 返回用于拨号的 quic.Transport，必要时在随机端口创建
func (t *Transport) dialTransport() (*quic.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if t.dialer != nil {
		return t.dialer, nil
	}
	pc, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	t.dialer = &quic.Transport{Conn: pc}
	t.sockets = append(t.sockets, t.dialer)
	return t.dialer, nil
}

// Dial 建立 QUIC 连接并打开一条双向流
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("%w: %s", types.ErrNoTransport, raddr)
	}
	ua, err := udpAddr(raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrTransport, raddr, err)
	}
	tr, err := t.dialTransport()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrTransport, err)
	}

	qconn, err := tr.Dial(ctx, ua, t.clientTLS, t.config)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", types.ErrTransport, raddr, err)
	}
	str, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		_ = qconn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("%w: open stream %s: %w", types.ErrTransport, raddr, err)
	}
	log.Debug("QUIC 拨号成功", "remote", raddr)
	return newStreamConn(qconn, str), nil
}

// Listen 在 UDP 地址上监听
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if !t.CanDial(laddr) {
		return nil, fmt.Errorf("%w: cannot listen on %s", types.ErrNoTransport, laddr)
	}
	ua, err := udpAddr(laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrTransport, laddr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	pc, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", types.ErrTransport, laddr, err)
	}
	tr := &quic.Transport{Conn: pc}
	ql, err := tr.Listen(t.serverTLS, t.config)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: listen %s: %w", types.ErrTransport, laddr, err)
	}

	bound, err := manet.FromNetAddr(pc.LocalAddr())
	if err != nil {
		_ = ql.Close()
		_ = pc.Close()
		return nil, err
	}
	t.sockets = append(t.sockets, tr)
	if t.dialer == nil {
		t.dialer = tr
	}

	l := newListener(t, ql, bound.Encapsulate(quicComponent))
	t.listeners[l] = struct{}{}
	log.Info("QUIC 监听已启动", "addr", l.addr)
	return l, nil
}

// Close 关闭监听器与全部 UDP socket
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ls := make([]*listener, 0, len(t.listeners))
	for l := range t.listeners {
		ls = append(ls, l)
	}
	sockets := t.sockets
	t.sockets = nil
	t.mu.Unlock()

	for _, l := range ls {
		_ = l.Close()
	}
	for _, tr := range sockets {
		_ = tr.Close()
		_ = tr.Conn.Close()
	}
	return nil
}

func (t *Transport) forget(l *listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}
