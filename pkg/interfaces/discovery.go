// 本文件定义 Discovery 接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// Discoverer 发现机制
//
// Discover 返回一个惰性、无界的候选序列，ctx 取消或机制停止时通道关闭。
// 每个机制是独立的故障域，协调器会在出错后按退避重新启动它。
type Discoverer interface {
	// Name 返回机制名称，如 "mdns"
	Name() string

	// Discover 开始发现
	Discover(ctx context.Context) (<-chan types.PeerInfo, error)
}

// Advertiser 需要公布本节点地址的发现机制可选实现
//
// 协调器在监听建立之后、Discover 之前调用 Advertise。
type Advertiser interface {
	Advertise(self types.PeerInfo)
}
