// 本文件定义 AddrBook 接口。
package interfaces

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// AddrBook 地址簿：节点身份 → 已知地址与元数据
type AddrBook interface {
	// AddAddrs 合并地址到记录（不存在则创建），source 记录来源机制
	AddAddrs(id types.PeerID, addrs []ma.Multiaddr, source string)

	// Addrs 返回已知地址
	Addrs(id types.PeerID) []ma.Multiaddr

	// Record 返回记录拷贝
	Record(id types.PeerID) (types.PeerRecord, bool)

	// Health 返回健康分，未知节点为 0
	Health(id types.PeerID) int

	// AdjustHealth 调整健康分并返回新值
	AdjustHealth(id types.PeerID, delta int) int

	// RecordSuccess 记录一次成功升级（健康分上调）
	RecordSuccess(id types.PeerID)

	// RecordFailure 记录一次失败尝试（健康分下调）
	RecordFailure(id types.PeerID)

	// MarkDialing 标记为拨号中，记录在拨号结束前不会被淘汰
	MarkDialing(id types.PeerID)

	// MarkConnected 标记为已连接并保存会话反向引用
	MarkConnected(id types.PeerID, sessionID string)

	// MarkDisconnected 标记为已断开或拨号失败，记录进入保留队列
	MarkDisconnected(id types.PeerID)

	// Peers 返回所有已知节点
	Peers() []types.PeerID

	// Candidates 按健康分降序返回可拨号的已断开节点
	Candidates(limit int, skip func(types.PeerID) bool) []types.PeerInfo
}
