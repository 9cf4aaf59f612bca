// 本文件定义 Session 接口：一次成功升级得到的加密、多路复用会话。
package interfaces

import (
	"context"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// Session 加密并多路复用的节点会话
//
// 打开期间由连接管理器的会话表独占持有，
// 地址簿记录只保存其 ID（非拥有引用）。
type Session interface {
	// ID 返回会话唯一标识
	ID() string

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回经过认证的远端节点 ID
	RemotePeer() types.PeerID

	// RemoteMultiaddr 返回远端传输地址
	RemoteMultiaddr() ma.Multiaddr

	// Stat 返回会话统计与协商结果
	Stat() SessionStat

	// OpenStream 打开新的子流
	OpenStream(ctx context.Context) (MuxedStream, error)

	// AcceptStream 接受对端打开的子流
	AcceptStream() (MuxedStream, error)

	// Close 关闭会话
	Close() error

	// IsClosed 是否已关闭
	IsClosed() bool

	// CloseChan 在会话（含传输层）关闭时关闭
	CloseChan() <-chan struct{}
}

// SessionStat 会话统计
type SessionStat struct {
	Direction  types.Direction
	Transport  string
	Security   string
	Muxer      string
	Opened     time.Time
	LastActive time.Time
	NumStreams int
}
