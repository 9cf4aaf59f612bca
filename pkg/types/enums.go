package types

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接
	DirInbound
	// DirOutbound 出站连接
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              CapabilityKind - 能力类型
// ============================================================================

// CapabilityKind 可插拔能力的类别
type CapabilityKind int

const (
	// KindTransport 传输层
	KindTransport CapabilityKind = iota + 1
	// KindMuxer 流多路复用
	KindMuxer
	// KindSecurity 加密握手
	KindSecurity
	// KindDiscovery 节点发现
	KindDiscovery
)

// String 返回能力类型名称
func (k CapabilityKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindMuxer:
		return "muxer"
	case KindSecurity:
		return "security"
	case KindDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// Valid 是否为已知类型
func (k CapabilityKind) Valid() bool {
	return k >= KindTransport && k <= KindDiscovery
}

// ============================================================================
//                              PeerState - 节点连接状态
// ============================================================================

// PeerState 连接管理器中单个节点的状态
//
// 状态机：
//
//	Unknown → Dialing → Connected → Disconnected
//	                    Connected → Pruned → Disconnected
type PeerState int

const (
	// StateUnknown 未知（从未拨号）
	StateUnknown PeerState = iota
	// StateDialing 拨号 / 升级中
	StateDialing
	// StateConnected 已建立会话
	StateConnected
	// StatePruned 已被裁剪，等待会话关闭
	StatePruned
	// StateDisconnected 已断开
	StateDisconnected
)

// String 返回状态名称
func (s PeerState) String() string {
	switch s {
	case StateDialing:
		return "dialing"
	case StateConnected:
		return "connected"
	case StatePruned:
		return "pruned"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              DisconnectReason - 断开原因
// ============================================================================

// DisconnectReason 断开原因码
type DisconnectReason int

const (
	// ReasonUnknown 未知原因
	ReasonUnknown DisconnectReason = iota
	// ReasonRemoteClosed 传输层关闭（对端关闭或连接错误）
	ReasonRemoteClosed
	// ReasonLocalClosed 本地主动关闭
	ReasonLocalClosed
	// ReasonPruned 被连接管理器裁剪
	ReasonPruned
	// ReasonDuplicate 重复会话被关闭
	ReasonDuplicate
	// ReasonShutdown 节点关闭
	ReasonShutdown
)

// String 返回断开原因的字符串表示
func (r DisconnectReason) String() string {
	switch r {
	case ReasonRemoteClosed:
		return "remote-closed"
	case ReasonLocalClosed:
		return "local-closed"
	case ReasonPruned:
		return "pruned"
	case ReasonDuplicate:
		return "duplicate"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
