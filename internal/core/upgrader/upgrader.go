package upgrader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.upgrader")

// DefaultHandshakeTimeout 默认升级超时
const DefaultHandshakeTimeout = 30 * time.Second

// Upgrader 连接升级器
type Upgrader struct {
	local    types.PeerID
	registry *capability.Registry

	book    pkgif.AddrBook
	metrics *metrics.Metrics

	handshakeTimeout time.Duration
}

var _ pkgif.Upgrader = (*Upgrader)(nil)

// Option 升级器选项
type Option func(*Upgrader)

// WithAddrBook 升级结果反馈到地址簿健康分
func WithAddrBook(book pkgif.AddrBook) Option {
	return func(u *Upgrader) { u.book = book }
}

// WithMetrics 启用指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Upgrader) { u.metrics = m }
}

// WithHandshakeTimeout 设置整个升级过程的超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(u *Upgrader) {
		if d > 0 {
			u.handshakeTimeout = d
		}
	}
}

// New 创建升级器
func New(id pkgif.Identity, registry *capability.Registry, opts ...Option) (*Upgrader, error) {
	if id == nil {
		return nil, ErrNilIdentity
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	u := &Upgrader{
		local:            id.PeerID(),
		registry:         registry,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upgrade 升级原始连接
//
// 失败时关闭 raw；已知对端时下调健康分。成功时上调对端健康分。
func (u *Upgrader) Upgrade(ctx context.Context, raw net.Conn, dir types.Direction, expected types.PeerID,
	transportID string, remote ma.Multiaddr) (pkgif.Session, error) {
	start := time.Now()

	if dir == types.DirOutbound && expected == u.local {
		_ = raw.Close()
		return nil, types.ErrDialSelf
	}

	ctx, cancel := context.WithTimeout(ctx, u.handshakeTimeout)
	defer cancel()

	conn := u.metrics.WrapConn(raw)
	sess, peer, err := u.upgrade(ctx, conn, dir, expected, transportID, remote)
	u.metrics.ObserveUpgrade(dir, start, err)

	if err != nil {
		_ = conn.Close()
		if peer.IsEmpty() {
			peer = expected
		}
		if u.book != nil && !peer.IsEmpty() && !errors.Is(err, types.ErrDialSelf) {
			u.book.RecordFailure(peer)
		}
		log.Debug("连接升级失败",
			"direction", dir,
			"peer", peer.ShortString(),
			"remote", remote,
			"error", err)
		return nil, err
	}

	if u.book != nil {
		u.book.RecordSuccess(sess.RemotePeer())
	}
	log.Debug("连接升级成功",
		"direction", dir,
		"peer", sess.RemotePeer().ShortString(),
		"security", sess.security,
		"muxer", sess.muxer,
		"elapsed", time.Since(start))
	return sess, nil
}

// upgrade 执行升级步骤，返回已认证的对端身份（握手成功后）以便失败时记账
func (u *Upgrader) upgrade(ctx context.Context, conn net.Conn, dir types.Direction, expected types.PeerID,
	transportID string, remote ma.Multiaddr) (*session, types.PeerID, error) {
	initiator := dir == types.DirOutbound

	// ctx 结束时让阻塞中的读写立即返回
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := selectHeader(conn, initiator); err != nil {
		return nil, "", u.classify(ctx, "protocol header", err, ErrProtocolHeader)
	}

	// 1. 安全协议
	secID, err := u.negotiate(conn, types.KindSecurity, initiator)
	if err != nil {
		return nil, "", u.classify(ctx, "security negotiation", err, types.ErrEncryptionHandshakeFailed)
	}
	st, ok := u.registry.SecurityByID(secID)
	if !ok {
		return nil, "", fmt.Errorf("%w: security %q not registered", types.ErrNoCommonCapability, secID)
	}

	// 2. 握手
	var sec pkgif.SecureConn
	if initiator {
		sec, err = st.SecureOutbound(ctx, conn, expected)
	} else {
		sec, err = st.SecureInbound(ctx, conn, expected)
	}
	if err != nil {
		return nil, "", u.classify(ctx, "security handshake", err, types.ErrEncryptionHandshakeFailed)
	}
	peer := sec.RemotePeer()
	if !expected.IsEmpty() && peer != expected {
		_ = sec.Close()
		return nil, "", fmt.Errorf("%w: expected %s, got %s", types.ErrPeerIdentityMismatch, expected.ShortString(), peer.ShortString())
	}
	if peer == u.local {
		_ = sec.Close()
		return nil, "", types.ErrDialSelf
	}

	// 3. 多路复用器
	muxID, err := u.negotiate(sec, types.KindMuxer, initiator)
	if err != nil {
		_ = sec.Close()
		return nil, peer, u.classify(ctx, "muxer negotiation", err, ErrMuxerSetupFailed)
	}
	sm, ok := u.registry.MuxerByID(muxID)
	if !ok {
		_ = sec.Close()
		return nil, peer, fmt.Errorf("%w: muxer %q not registered", types.ErrNoCommonCapability, muxID)
	}

	// 协商完成，取消截止时间后交给多路复用器
	if !stop() {
		_ = sec.Close()
		return nil, peer, fmt.Errorf("%w: %w", types.ErrUpgradeTimeout, ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = sec.Close()
		return nil, peer, fmt.Errorf("clear deadline: %w", err)
	}

	mc, err := sm.NewConn(sec, !initiator)
	if err != nil {
		_ = sec.Close()
		return nil, peer, fmt.Errorf("%w: %w", ErrMuxerSetupFailed, err)
	}

	return newSession(mc, sec, dir, transportID, secID, muxID, remote), peer, nil
}

// classify 为阶段错误补充类别
//
// ctx 已结束时一律视为超时；已带类别的错误原样保留；
// 其余 I/O 错误归入 fallback。
func (u *Upgrader) classify(ctx context.Context, stage string, err, fallback error) error {
	switch {
	case errors.Is(err, types.ErrUpgradeTimeout):
		return fmt.Errorf("%s: %w", stage, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w: %w", stage, types.ErrUpgradeTimeout, ctx.Err())
	case errors.Is(err, types.ErrNegotiation), errors.Is(err, types.ErrTransport):
		return fmt.Errorf("%s: %w", stage, err)
	default:
		return fmt.Errorf("%s: %w: %w", stage, fallback, err)
	}
}
