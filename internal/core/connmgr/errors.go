package connmgr

import "errors"

var (
	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("connmgr: manager closed")

	// ErrNilDialer 缺少拨号器
	ErrNilDialer = errors.New("connmgr: dialer is nil")

	// ErrNilAddrBook 缺少地址簿
	ErrNilAddrBook = errors.New("connmgr: address book is nil")

	// ErrNotAdmitted 连接池已满且候选不足以替换现有会话
	//
	// 只由 Connect 返回；Admit 把这种情况视为正常结果。
	ErrNotAdmitted = errors.New("connmgr: candidate not admitted, pool at capacity")

	// ErrDialBackoff 节点处于拨号退避期
	ErrDialBackoff = errors.New("connmgr: peer in dial backoff")

	// ErrNotConnected 节点没有打开的会话
	ErrNotConnected = errors.New("connmgr: peer not connected")
)
