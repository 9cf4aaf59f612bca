package tcp

import (
	"fmt"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// ErrClosed 传输层已关闭
var ErrClosed = fmt.Errorf("%w: tcp transport closed", types.ErrTransport)
