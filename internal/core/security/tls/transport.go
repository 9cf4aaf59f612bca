package tls

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.security.tls")

// ID 协商标识
const ID = "/tls/1.0.0"

// alpn TLS 应用层协议标识
const alpn = "nodehost"

// Transport TLS 安全传输
type Transport struct {
	localPeer types.PeerID
	cert      tls.Certificate
}

var _ pkgif.SecureTransport = (*Transport)(nil)

// New 使用节点身份创建 TLS 传输
func New(id pkgif.Identity) (*Transport, error) {
	priv, ok := id.PrivateKey().(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: tls requires an ed25519 key, got %T", types.ErrIdentity, id.PrivateKey())
	}
	cert, err := generateCertificate(priv, id.PeerID())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIdentity, err)
	}
	return &Transport{localPeer: id.PeerID(), cert: cert}, nil
}

// ID 返回协商标识
func (t *Transport) ID() string { return ID }

func (t *Transport) config() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{t.cert},
		NextProtos:   []string{alpn},
		ClientAuth:   tls.RequireAnyClientCert,

		// 会话不复用，也避免握手后服务端单方面写入 ticket
		SessionTicketsDisabled: true,

		// 自签名证书没有 CA 链，校验由 VerifyPeerCertificate 完成
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			_, _, err := verifyCertificate(rawCerts)
			return err
		},
	}
}

// SecureInbound 作为 TLS 服务端握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, expected types.PeerID) (pkgif.SecureConn, error) {
	return t.handshake(ctx, tls.Server(conn, t.config()), expected, false)
}

// SecureOutbound 作为 TLS 客户端握手，expected 非空时验证对端身份
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected types.PeerID) (pkgif.SecureConn, error) {
	return t.handshake(ctx, tls.Client(conn, t.config()), expected, true)
}

func (t *Transport) handshake(ctx context.Context, tc *tls.Conn, expected types.PeerID, initiator bool) (pkgif.SecureConn, error) {
	if err := tc.HandshakeContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrUpgradeTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: tls: %w", types.ErrEncryptionHandshakeFailed, err)
	}

	state := tc.ConnectionState()
	raw := make([][]byte, 0, len(state.PeerCertificates))
	for _, c := range state.PeerCertificates {
		raw = append(raw, c.Raw)
	}
	pub, remote, err := verifyCertificate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: tls: %w", types.ErrEncryptionHandshakeFailed, err)
	}
	if !expected.IsEmpty() && remote != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", types.ErrPeerIdentityMismatch, expected, remote)
	}
	if remote == t.localPeer {
		return nil, types.ErrDialSelf
	}

	log.Debug("TLS 握手完成", "remote", remote.ShortString(), "initiator", initiator)
	return &secureConn{Conn: tc, localPeer: t.localPeer, remotePeer: remote, remotePubKey: pub}, nil
}

// secureConn TLS 加密连接
type secureConn struct {
	*tls.Conn

	localPeer    types.PeerID
	remotePeer   types.PeerID
	remotePubKey ed25519.PublicKey
}

func (c *secureConn) LocalPeer() types.PeerID  { return c.localPeer }
func (c *secureConn) RemotePeer() types.PeerID { return c.remotePeer }
func (c *secureConn) RemotePublicKey() []byte  { return c.remotePubKey }
