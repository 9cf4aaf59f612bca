// 本文件定义 Security 接口，抽象安全传输协议。
package interfaces

import (
	"context"
	"net"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// SecureTransport 定义安全传输接口
//
// expected 非空时，握手完成后对端身份必须与之相同，
// 否则返回包装了 types.ErrPeerIdentityMismatch 的错误。
type SecureTransport interface {
	// ID 返回安全协议标识
	ID() string

	// SecureInbound 保护入站连接
	SecureInbound(ctx context.Context, conn net.Conn, expected types.PeerID) (SecureConn, error)

	// SecureOutbound 保护出站连接
	SecureOutbound(ctx context.Context, conn net.Conn, expected types.PeerID) (SecureConn, error)
}

// SecureConn 定义安全连接接口
type SecureConn interface {
	net.Conn

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回经过认证的远端节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 返回远端 Ed25519 公钥
	RemotePublicKey() []byte
}
