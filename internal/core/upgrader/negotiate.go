package upgrader

import (
	"fmt"
	"io"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// ProtocolID 升级协议头
const ProtocolID = "/nodehost/upgrade/1.0.0"

// selectHeader 协商升级协议头
func selectHeader(rwc io.ReadWriteCloser, initiator bool) error {
	if initiator {
		if err := mss.SelectProtoOrFail(ProtocolID, rwc); err != nil {
			return fmt.Errorf("%w: %w", ErrProtocolHeader, err)
		}
		return nil
	}

	m := mss.NewMultistreamMuxer[string]()
	m.AddHandler(ProtocolID, nil)
	if _, _, err := m.Negotiate(rwc); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolHeader, err)
	}
	return nil
}

// negotiate 交换提议并选出双方都支持的能力
//
// 发起方先写后读，响应方先读后写。响应方即使没有交集也会回写自己的列表，
// 使发起方同样得到 types.ErrNoCommonCapability 而不是读错误。
func (u *Upgrader) negotiate(rw io.ReadWriter, kind types.CapabilityKind, initiator bool) (string, error) {
	local := u.registry.IDs(kind)

	if initiator {
		if err := writeOffer(rw, kind, local); err != nil {
			return "", err
		}
		remote, err := readOffer(rw, kind)
		if err != nil {
			return "", err
		}
		return u.registry.Resolve(kind, remote)
	}

	remote, err := readOffer(rw, kind)
	if err != nil {
		return "", err
	}
	if err := writeOffer(rw, kind, local); err != nil {
		return "", err
	}
	id, ok := capability.Negotiate(remote, local)
	if !ok {
		return "", fmt.Errorf("%w: %s local=%v remote=%v", types.ErrNoCommonCapability, kind, local, remote)
	}
	return id, nil
}
