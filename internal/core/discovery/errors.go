package discovery

import "errors"

// 错误定义
var (
	ErrNilAddrBook      = errors.New("discovery: nil address book")
	ErrAlreadyStarted   = errors.New("discovery: already started")
	ErrStopped          = errors.New("discovery: coordinator stopped")
	ErrMechanismStopped = errors.New("discovery: mechanism stream ended")
)
