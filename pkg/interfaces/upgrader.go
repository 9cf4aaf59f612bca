// 本文件定义 Upgrader 接口。
package interfaces

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// Upgrader 将原始连接升级为加密、多路复用的会话
//
// 失败时原始连接一定被关闭。
type Upgrader interface {
	// Upgrade 升级连接
	//
	// expected 非空时，握手后的对端身份必须与之相同。
	Upgrade(ctx context.Context, raw net.Conn, dir types.Direction, expected types.PeerID,
		transportID string, remote ma.Multiaddr) (Session, error)
}
