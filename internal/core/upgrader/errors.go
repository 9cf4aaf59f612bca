package upgrader

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-nodehost/pkg/types"
)

var (
	// ErrNilRegistry 注册表为空
	ErrNilRegistry = errors.New("upgrader: registry is nil")

	// ErrNilIdentity 身份为空
	ErrNilIdentity = errors.New("upgrader: identity is nil")

	// ErrProtocolHeader 协议头协商失败
	ErrProtocolHeader = fmt.Errorf("%w: upgrade protocol header", types.ErrNegotiation)

	// ErrMalformedOffer 提议格式错误
	ErrMalformedOffer = fmt.Errorf("%w: malformed capability offer", types.ErrNegotiation)

	// ErrMuxerSetupFailed 多路复用器协商或建立失败
	ErrMuxerSetupFailed = fmt.Errorf("%w: muxer setup failed", types.ErrNegotiation)
)
