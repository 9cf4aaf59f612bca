package noise

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.security.noise")

// ID 协商标识
const ID = "/noise"

// Transport Noise 安全传输
type Transport struct {
	localPeer types.PeerID
	priv      ed25519.PrivateKey
}

var _ pkgif.SecureTransport = (*Transport)(nil)

// New 使用节点身份创建 Noise 传输，身份私钥必须是 Ed25519
func New(id pkgif.Identity) (*Transport, error) {
	priv, ok := id.PrivateKey().(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: noise requires an ed25519 key, got %T", types.ErrIdentity, id.PrivateKey())
	}
	return &Transport{localPeer: id.PeerID(), priv: priv}, nil
}

// ID 返回协商标识
func (t *Transport) ID() string { return ID }

// SecureInbound 作为响应方握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, expected types.PeerID) (pkgif.SecureConn, error) {
	return t.handshake(ctx, conn, expected, false)
}

// SecureOutbound 作为发起方握手，expected 非空时验证对端身份
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected types.PeerID) (pkgif.SecureConn, error) {
	return t.handshake(ctx, conn, expected, true)
}

func (t *Transport) handshake(ctx context.Context, conn net.Conn, expected types.PeerID, initiator bool) (pkgif.SecureConn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	res, err := performHandshake(conn, t.priv, initiator)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrUpgradeTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: noise: %w", types.ErrEncryptionHandshakeFailed, err)
	}
	if !stop() {
		// 取消回调已经设置了截止时间
		return nil, fmt.Errorf("%w: %w", types.ErrUpgradeTimeout, ctx.Err())
	}
	if !expected.IsEmpty() && res.remotePeer != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", types.ErrPeerIdentityMismatch, expected, res.remotePeer)
	}
	if res.remotePeer == t.localPeer {
		return nil, types.ErrDialSelf
	}

	log.Debug("Noise 握手完成", "remote", res.remotePeer.ShortString(), "initiator", initiator)
	return &secureConn{
		Conn:         conn,
		send:         res.send,
		recv:         res.recv,
		localPeer:    t.localPeer,
		remotePeer:   res.remotePeer,
		remotePubKey: res.remotePubKey,
	}, nil
}
