// 本文件定义事件总线上发布的事件类型。
package types

import (
	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              节点生命周期事件
// ============================================================================

// EvtNodeStarted 节点启动完成（监听已建立，发现已开始）
type EvtNodeStarted struct {
	Peer  PeerID
	Addrs []ma.Multiaddr
}

// EvtNodeStopped 节点已完全停止
type EvtNodeStopped struct {
	Peer PeerID
}

// ============================================================================
//                              连接事件
// ============================================================================

// EvtPeerConnected 与节点建立了会话
//
// Session 字段保存为 any 以避免 types 包依赖接口包，
// 订阅者应断言为 interfaces.Session。
type EvtPeerConnected struct {
	Peer      PeerID
	Direction Direction
	Session   any
}

// EvtPeerDisconnected 与节点的会话已关闭
type EvtPeerDisconnected struct {
	Peer   PeerID
	Reason DisconnectReason
}

// ============================================================================
//                              发现事件
// ============================================================================

// EvtPeerDiscovered 发现机制产出了一个候选节点
type EvtPeerDiscovered struct {
	Peer   PeerInfo
	Source string
}
