package host

import "errors"

// 错误定义
var (
	ErrAlreadyStarted = errors.New("host: already started")
	ErrNotStarted     = errors.New("host: not started")
	ErrClosed         = errors.New("host: closed")
	ErrMissingDep     = errors.New("host: missing dependency")
)
