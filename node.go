package nodehost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/host"
	"github.com/dep2p/go-nodehost/internal/core/introspect"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("nodehost")

const (
	// startTimeout Fx 应用启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Close 使用的停止超时
	stopTimeout = 15 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止，不可重新启动
	StateStopped
)

// String 返回状态名称
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// Node 节点主入口
//
// Node 包装 Fx 应用，核心组件由主机按固定顺序启动和停止。
// 一个 Node 只能启动一次；停止后释放全部资源。
type Node struct {
	config *nodeConfig
	app    *fx.App

	host        *host.Host
	bus         pkgif.EventBus
	metrics     *metrics.Metrics
	diagnostics *introspect.Server

	mu    sync.RWMutex
	state NodeState
}

// New 创建节点但不启动
//
// 配置无效或身份加载失败时返回错误（包装 types.ErrConfiguration / types.ErrIdentity）。
//
//	node, err := nodehost.New(ctx,
//	    nodehost.WithListenAddrs("/ip4/0.0.0.0/tcp/4001"),
//	    nodehost.WithBootstrapPeers("/ip4/1.2.3.4/tcp/4001/p2p/..."),
//	)
func New(_ context.Context, opts ...Option) (*Node, error) {
	cfg := newNodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("%w: apply option: %w", types.ErrConfiguration, err)
		}
	}

	node := &Node{config: cfg}
	app, err := buildFxApp(cfg, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	node.app = app
	return node, nil
}

// Start 创建并启动节点，等价于 New() + Start()
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

func (n *Node) inject(c nodeComponents) {
	n.host = c.Host
	n.bus = c.EventBus
	n.metrics = c.Metrics
	n.diagnostics = c.Diagnostics
}

// Start 启动节点
//
// 启动失败时已启动的组件按相反顺序停止，节点不可再次启动。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	log.Info("正在启动节点", "peer", n.host.ID().ShortString())
	if err := n.app.Start(startCtx); err != nil {
		n.state = StateStopped
		log.Error("节点启动失败", "error", err)
		return err
	}

	n.state = StateRunning
	log.Info("节点已启动", "addrs", n.host.Addrs())
	return nil
}

// Stop 停止节点并释放资源
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return ErrNodeClosed
	}

	n.state = StateStopped
	log.Info("正在停止节点")
	if err := n.app.Stop(ctx); err != nil {
		log.Error("停止节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	log.Info("节点已停止")
	return nil
}

// Close 停止节点，重复调用或未启动时为空操作
func (n *Node) Close() error {
	if n.State() != StateRunning {
		n.mu.Lock()
		n.state = StateStopped
		n.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := n.Stop(ctx); err != nil && !errors.Is(err, ErrNodeClosed) {
		return err
	}
	return nil
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsRunning 节点是否运行中
func (n *Node) IsRunning() bool {
	return n.State() == StateRunning
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 返回节点 ID
func (n *Node) ID() types.PeerID {
	return n.host.ID()
}

// Addrs 返回实际监听地址，未启动时为空
func (n *Node) Addrs() []ma.Multiaddr {
	return n.host.Addrs()
}

// Info 返回可分享给其它节点的 PeerInfo
func (n *Node) Info() types.PeerInfo {
	return n.host.Info()
}

// Config 返回节点生效的配置，调用方不应修改
func (n *Node) Config() *config.Config {
	return n.config.config
}

// Host 返回底层主机
func (n *Node) Host() *host.Host {
	return n.host
}

// Metrics 返回节点指标
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// DiagnosticsAddr 返回诊断服务监听地址，未启用时为空
func (n *Node) DiagnosticsAddr() string {
	if n.diagnostics == nil {
		return ""
	}
	return n.diagnostics.Addr()
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// Connect 连接到节点并等待结果
func (n *Node) Connect(ctx context.Context, info types.PeerInfo) error {
	return n.host.Connect(ctx, info)
}

// ConnectAddr 连接到形如 /ip4/.../tcp/.../p2p/<id> 的地址
func (n *Node) ConnectAddr(ctx context.Context, addr string) error {
	info, err := types.PeerInfoFromString(addr)
	if err != nil {
		return err
	}
	return n.Connect(ctx, info)
}

// ClosePeer 关闭与节点的会话
func (n *Node) ClosePeer(peer types.PeerID) error {
	return n.host.ClosePeer(peer)
}

// NewStream 在已连接节点的会话上打开子流
func (n *Node) NewStream(ctx context.Context, peer types.PeerID) (pkgif.MuxedStream, error) {
	return n.host.NewStream(ctx, peer)
}

// Peers 返回已连接节点
func (n *Node) Peers() []types.PeerID {
	return n.host.Peers()
}

// PeerState 返回节点的连接状态
func (n *Node) PeerState(peer types.PeerID) types.PeerState {
	return n.host.PeerState(peer)
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 订阅节点事件
//
// eventType 为事件类型指针，如 new(types.EvtPeerConnected)。
// 订阅者缓冲满时事件被丢弃，发布方不会阻塞。
func (n *Node) Subscribe(eventType any, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	return n.bus.Subscribe(eventType, opts...)
}
