package host

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// Dialer 按地址顺序拨号并升级，实现 connmgr.Dialer
//
// 不依赖连接管理器本身，避免依赖环。
type Dialer struct {
	registry *capability.Registry
	upgrader pkgif.Upgrader
	book     pkgif.AddrBook
}

var _ connmgr.Dialer = (*Dialer)(nil)

// NewDialer 创建拨号器
func NewDialer(registry *capability.Registry, upgrader pkgif.Upgrader, book pkgif.AddrBook) (*Dialer, error) {
	if registry == nil || upgrader == nil || book == nil {
		return nil, fmt.Errorf("%w: dialer needs registry, upgrader and address book", ErrMissingDep)
	}
	return &Dialer{registry: registry, upgrader: upgrader, book: book}, nil
}

// DialPeer 依次尝试候选地址，返回第一个升级成功的会话
//
// 候选没有地址时使用地址簿中的已知地址。升级失败的健康分由升级器记录；
// 所有地址都在传输层失败时这里记一次失败。
func (d *Dialer) DialPeer(ctx context.Context, info types.PeerInfo) (pkgif.Session, error) {
	addrs := info.Addrs
	if len(addrs) == 0 && info.HasIdentity() {
		addrs = d.book.Addrs(info.ID)
	}
	if len(addrs) == 0 {
		return nil, types.ErrNoAddresses
	}

	var (
		errs     error
		upgraded bool
	)
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		t, ok := d.registry.TransportFor(addr)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", types.ErrNoTransport, addr))
			continue
		}

		raw, err := t.Dial(ctx, addr)
		if err != nil {
			errs = multierr.Append(errs, wrapTransport(addr.String(), err))
			continue
		}

		upgraded = true
		sess, err := d.upgrader.Upgrade(ctx, raw, types.DirOutbound, info.ID, t.ID(), addr)
		if err != nil {
			errs = multierr.Append(errs, err)
			// 身份不符或拨到自己时换地址也没有意义
			if errors.Is(err, types.ErrPeerIdentityMismatch) || errors.Is(err, types.ErrDialSelf) {
				break
			}
			continue
		}
		return sess, nil
	}

	if !upgraded && info.HasIdentity() {
		d.book.RecordFailure(info.ID)
	}
	return nil, firstOrCombined(errs)
}

// wrapTransport 为原始拨号错误补上传输类别
func wrapTransport(addr string, err error) error {
	if errors.Is(err, types.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: dial %s: %w", types.ErrTransport, addr, err)
}

// firstOrCombined 只有一个错误时原样返回，便于 errors.Is 判断
func firstOrCombined(err error) error {
	errs := multierr.Errors(err)
	if len(errs) == 1 {
		return errs[0]
	}
	return err
}
