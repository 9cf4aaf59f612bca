package capability

import "errors"

var (
	// ErrSealed 注册表已封存
	ErrSealed = errors.New("capability: registry sealed")

	// ErrEmptyID 能力标识为空
	ErrEmptyID = errors.New("capability: empty id")

	// ErrKindMismatch 实现不满足类别接口
	ErrKindMismatch = errors.New("capability: implementation does not match kind")
)
