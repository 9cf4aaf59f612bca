// 本文件定义所有公共错误类型。
//
// 错误分为四个类别，具体错误通过 %w 包装其类别，
// 因此 errors.Is(err, ErrNegotiation) 对任意协商失败成立。
package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              错误类别
// ============================================================================

var (
	// ErrConfiguration 配置错误（边界非法、能力重复注册），启动时致命
	ErrConfiguration = errors.New("configuration error")

	// ErrNegotiation 协商错误，作为一次失败的拨号在本地处理
	ErrNegotiation = errors.New("negotiation error")

	// ErrTransport 传输错误（连接被拒绝、地址不可达），按退避策略重试
	ErrTransport = errors.New("transport error")

	// ErrIdentity 无法获取本节点身份，启动时致命
	ErrIdentity = errors.New("identity error")
)

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")
)

// ============================================================================
//                              能力与协商错误
// ============================================================================

var (
	// ErrDuplicateCapability 同一类别下重复注册相同标识
	ErrDuplicateCapability = fmt.Errorf("%w: duplicate capability", ErrConfiguration)

	// ErrNoCommonCapability 双方没有共同支持的能力
	ErrNoCommonCapability = fmt.Errorf("%w: no common capability", ErrNegotiation)

	// ErrEncryptionHandshakeFailed 加密握手失败
	ErrEncryptionHandshakeFailed = fmt.Errorf("%w: encryption handshake failed", ErrNegotiation)

	// ErrPeerIdentityMismatch 认证后的身份与期望拨号的身份不一致
	ErrPeerIdentityMismatch = fmt.Errorf("%w: peer identity mismatch", ErrNegotiation)

	// ErrUpgradeTimeout 升级超时
	ErrUpgradeTimeout = fmt.Errorf("%w: upgrade timeout", ErrTransport)

	// ErrDialSelf 拨号到自身
	ErrDialSelf = fmt.Errorf("%w: dial to self", ErrTransport)

	// ErrNoTransport 没有可拨号该地址的传输层
	ErrNoTransport = fmt.Errorf("%w: no transport for address", ErrTransport)

	// ErrNoAddresses 候选节点没有任何地址
	ErrNoAddresses = fmt.Errorf("%w: no addresses", ErrTransport)
)

// IsNegotiationError 是否为协商类错误
func IsNegotiationError(err error) bool {
	return errors.Is(err, ErrNegotiation)
}

// IsTransportError 是否为传输类错误
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}

// ============================================================================
//                              会话错误
// ============================================================================

var (
	// ErrStreamReset 流被重置
	ErrStreamReset = errors.New("stream reset")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")
)
