package host

import (
	"context"
	"fmt"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	"github.com/dep2p/go-nodehost/internal/core/discovery"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.host")

type hostState int

const (
	stateIdle hostState = iota
	stateRunning
	stateStopped
)

// Host 节点主机
type Host struct {
	identity    pkgif.Identity
	registry    *capability.Registry
	upgrader    pkgif.Upgrader
	manager     *connmgr.Manager
	coordinator *discovery.Coordinator
	book        pkgif.AddrBook
	bus         pkgif.EventBus

	listenAddrs []ma.Multiaddr
	emitters    emitters

	mu        sync.Mutex
	state     hostState
	ctx       context.Context
	cancel    context.CancelFunc
	listeners []pkgif.Listener
	accepts   *errgroup.Group
	inbound   sync.WaitGroup
}

// Params 构造参数
type Params struct {
	Identity    pkgif.Identity
	Registry    *capability.Registry
	Upgrader    pkgif.Upgrader
	Manager     *connmgr.Manager
	Coordinator *discovery.Coordinator
	AddrBook    pkgif.AddrBook
	EventBus    pkgif.EventBus
	ListenAddrs []ma.Multiaddr
}

// New 创建主机，不启动任何组件
func New(p Params) (*Host, error) {
	switch {
	case p.Identity == nil:
		return nil, fmt.Errorf("%w: identity", ErrMissingDep)
	case p.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDep)
	case p.Upgrader == nil:
		return nil, fmt.Errorf("%w: upgrader", ErrMissingDep)
	case p.Manager == nil:
		return nil, fmt.Errorf("%w: connection manager", ErrMissingDep)
	case p.Coordinator == nil:
		return nil, fmt.Errorf("%w: discovery coordinator", ErrMissingDep)
	case p.AddrBook == nil:
		return nil, fmt.Errorf("%w: address book", ErrMissingDep)
	case p.EventBus == nil:
		return nil, fmt.Errorf("%w: event bus", ErrMissingDep)
	}

	em, err := newEmitters(p.EventBus)
	if err != nil {
		return nil, err
	}

	h := &Host{
		identity:    p.Identity,
		registry:    p.Registry,
		upgrader:    p.Upgrader,
		manager:     p.Manager,
		coordinator: p.Coordinator,
		book:        p.AddrBook,
		bus:         p.EventBus,
		listenAddrs: p.ListenAddrs,
		emitters:    em,
	}
	h.manager.Notify(h)
	return h, nil
}

// ID 返回本节点 ID
func (h *Host) ID() types.PeerID {
	return h.identity.PeerID()
}

// Addrs 返回实际监听地址
func (h *Host) Addrs() []ma.Multiaddr {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ma.Multiaddr, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

// Info 返回本节点的 PeerInfo
func (h *Host) Info() types.PeerInfo {
	return types.PeerInfo{ID: h.ID(), Addrs: h.Addrs()}
}

// Connect 显式提交候选并等待结果
func (h *Host) Connect(ctx context.Context, info types.PeerInfo) error {
	if !h.running() {
		return ErrNotStarted
	}
	return h.manager.Connect(ctx, info)
}

// ClosePeer 主动关闭与节点的会话
func (h *Host) ClosePeer(peer types.PeerID) error {
	return h.manager.ClosePeer(peer)
}

// Session 返回与节点的会话
func (h *Host) Session(peer types.PeerID) (pkgif.Session, bool) {
	return h.manager.Session(peer)
}

// NewStream 在与节点的会话上打开子流
func (h *Host) NewStream(ctx context.Context, peer types.PeerID) (pkgif.MuxedStream, error) {
	sess, ok := h.manager.Session(peer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", connmgr.ErrNotConnected, peer.ShortString())
	}
	return sess.OpenStream(ctx)
}

// Peers 返回已连接节点
func (h *Host) Peers() []types.PeerID {
	return h.manager.Connected()
}

// Sessions 返回全部会话
func (h *Host) Sessions() []pkgif.Session {
	return h.manager.Sessions()
}

// PeerState 返回节点的生命周期状态
func (h *Host) PeerState(peer types.PeerID) types.PeerState {
	return h.manager.State(peer)
}

// Registry 返回能力注册表
func (h *Host) Registry() *capability.Registry {
	return h.registry
}

// AddrBook 返回地址簿
func (h *Host) AddrBook() pkgif.AddrBook {
	return h.book
}

// EventBus 返回事件总线
func (h *Host) EventBus() pkgif.EventBus {
	return h.bus
}

// ConnManager 返回连接管理器
func (h *Host) ConnManager() *connmgr.Manager {
	return h.manager
}

// Discovery 返回发现协调器
func (h *Host) Discovery() *discovery.Coordinator {
	return h.coordinator
}

func (h *Host) running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateRunning
}
