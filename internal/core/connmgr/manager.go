package connmgr

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.connmgr")

// Dialer 拨号并升级到指定节点
//
// 由节点主机实现：选择传输、拨号、交给升级器。
type Dialer interface {
	DialPeer(ctx context.Context, info types.PeerInfo) (pkgif.Session, error)
}

// DialerFunc 函数形式的 Dialer
type DialerFunc func(ctx context.Context, info types.PeerInfo) (pkgif.Session, error)

// DialPeer 调用 f
func (f DialerFunc) DialPeer(ctx context.Context, info types.PeerInfo) (pkgif.Session, error) {
	return f(ctx, info)
}

// peerEntry 单个节点的状态
type peerEntry struct {
	state   types.PeerState
	session pkgif.Session

	// closing 本地主动关闭时记录的原因
	closing types.DisconnectReason

	waiters []chan error

	bo      *backoff.ExponentialBackOff
	retryAt time.Time
}

// Manager 连接管理器
type Manager struct {
	cfg     config.ConnManagerConfig
	local   types.PeerID
	dialer  Dialer
	book    pkgif.AddrBook
	metrics *metrics.Metrics
	clock   clock.Clock
	limiter *rate.Limiter

	protects *protectStore

	mu          sync.Mutex
	closed      bool
	started     bool
	peers       map[types.PeerID]*peerEntry
	anonDialing int

	// pending 待投递的通知，受 mu 保护；deliverMu 串行化投递
	pending   []notification
	deliverMu sync.Mutex
	notifyMu  sync.RWMutex
	notifiees []Notifiee

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pruneCh chan struct{}
}

// Option 管理器选项
type Option func(*Manager)

// WithClock 替换时钟（测试使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics 启用指标
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New 创建连接管理器
func New(cfg config.ConnManagerConfig, local types.PeerID, dialer Dialer, book pkgif.AddrBook, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, ErrNilDialer
	}
	if book == nil {
		return nil, ErrNilAddrBook
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		local:    local,
		dialer:   dialer,
		book:     book,
		clock:    clock.New(),
		protects: newProtectStore(),
		peers:    make(map[types.PeerID]*peerEntry),
		ctx:      ctx,
		cancel:   cancel,
		pruneCh:  make(chan struct{}, 1),
	}
	if cfg.MaxDialsPerSecond > 0 {
		burst := int(cfg.MaxDialsPerSecond)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.MaxDialsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start 启动裁剪与维护循环，重复调用是空操作
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		return nil
	}
	m.started = true

	// 在返回前创建 ticker，之后推进的时钟一定会触发它
	ticker := m.clock.Ticker(m.cfg.PollInterval.Duration())
	m.wg.Add(1)
	go m.loop(ticker)
	log.Info("连接管理器已启动",
		"minPeers", m.cfg.MinPeers,
		"maxPeers", m.cfg.MaxPeers,
		"pollInterval", m.cfg.PollInterval.Duration())
	return nil
}

// Shutdown 取消所有拨号、关闭所有会话并等待协程退出
//
// 之后的调用是空操作；之后的 Admit 返回 ErrManagerClosed。
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancel()

	var sessions []pkgif.Session
	for id, e := range m.peers {
		switch e.state {
		case types.StateConnected, types.StatePruned:
			sessions = append(sessions, e.session)
			m.enqueueLocked(disconnectedNote(id, types.ReasonShutdown))
			m.book.MarkDisconnected(id)
			m.metrics.ObserveDisconnect(types.ReasonShutdown)
		case types.StateDialing:
			m.book.MarkDisconnected(id)
		}
		e.state = types.StateDisconnected
		e.session = nil
		e.failWaiters(ErrManagerClosed)
	}
	m.updateMetricsLocked()
	m.mu.Unlock()

	var err error
	for _, s := range sessions {
		err = multierr.Append(err, s.Close())
	}
	m.wg.Wait()
	m.flushSync()

	log.Info("连接管理器已关闭", "sessions", len(sessions))
	return err
}

// loop 周期性裁剪与维护
func (m *Manager) loop(ticker *clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.prune()
			m.maintain()
		case <-m.pruneCh:
			m.prune()
		case <-m.ctx.Done():
			return
		}
	}
}

// triggerPrune 请求立即裁剪
func (m *Manager) triggerPrune() {
	select {
	case m.pruneCh <- struct{}{}:
	default:
	}
}

// ============================================================================
//                              查询
// ============================================================================

// State 返回节点状态，未知节点为 StateUnknown
func (m *Manager) State(peer types.PeerID) types.PeerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.peers[peer]; ok {
		return e.state
	}
	return types.StateUnknown
}

// Session 返回节点的打开会话
func (m *Manager) Session(peer types.PeerID) (pkgif.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.peers[peer]
	if !ok || e.session == nil {
		return nil, false
	}
	return e.session, true
}

// Connected 返回处于 Connected 状态的节点（有序）
func (m *Manager) Connected() []types.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.PeerID, 0, len(m.peers))
	for id, e := range m.peers {
		if e.state == types.StateConnected {
			out = append(out, id)
		}
	}
	sort.Sort(types.PeerIDSlice(out))
	return out
}

// Sessions 返回所有打开的会话
func (m *Manager) Sessions() []pkgif.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]pkgif.Session, 0, len(m.peers))
	for _, e := range m.peers {
		if e.session != nil {
			out = append(out, e.session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemotePeer() < out[j].RemotePeer() })
	return out
}

// ConnectedCount 返回 Connected 状态的会话数
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(types.StateConnected)
}

// Counts 返回各状态的节点数
func (m *Manager) Counts() map[types.PeerState]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countsLocked()
}

// ClosePeer 关闭节点的会话，原因记为 ReasonLocalClosed
func (m *Manager) ClosePeer(peer types.PeerID) error {
	m.mu.Lock()
	e, ok := m.peers[peer]
	if !ok || e.session == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if e.closing == types.ReasonUnknown {
		e.closing = types.ReasonLocalClosed
	}
	sess := e.session
	m.mu.Unlock()

	return sess.Close()
}

// ============================================================================
//                              保护
// ============================================================================

// Protect 保护节点不被裁剪
func (m *Manager) Protect(peer types.PeerID, tag string) {
	m.protects.Protect(peer, tag)
	log.Debug("保护节点", "peer", peer.ShortString(), "tag", tag)
}

// Unprotect 移除保护标签，返回是否仍受其他标签保护
func (m *Manager) Unprotect(peer types.PeerID, tag string) bool {
	return m.protects.Unprotect(peer, tag)
}

// IsProtected 检查保护状态，tag 为空时检查任意标签
func (m *Manager) IsProtected(peer types.PeerID, tag string) bool {
	return m.protects.IsProtected(peer, tag)
}

// ============================================================================
//                              内部
// ============================================================================

func (m *Manager) countLocked(state types.PeerState) int {
	n := 0
	for _, e := range m.peers {
		if e.state == state {
			n++
		}
	}
	return n
}

func (m *Manager) countsLocked() map[types.PeerState]int {
	counts := map[types.PeerState]int{
		types.StateDialing:      m.anonDialing,
		types.StateConnected:    0,
		types.StatePruned:       0,
		types.StateDisconnected: 0,
	}
	for _, e := range m.peers {
		counts[e.state]++
	}
	return counts
}

// openLocked 返回占用连接池名额的数量（会话 + 拨号中）
func (m *Manager) openLocked() int {
	return m.countLocked(types.StateConnected) + m.countLocked(types.StateDialing) + m.anonDialing
}

func (m *Manager) updateMetricsLocked() {
	if m.metrics != nil {
		m.metrics.SetPeers(m.countsLocked())
	}
}

func (m *Manager) entry(id types.PeerID) *peerEntry {
	e, ok := m.peers[id]
	if !ok {
		e = &peerEntry{state: types.StateUnknown}
		m.peers[id] = e
	}
	return e
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     m.cfg.Backoff.Initial.Duration(),
		RandomizationFactor: m.cfg.Backoff.Jitter,
		Multiplier:          m.cfg.Backoff.Multiplier,
		MaxInterval:         m.cfg.Backoff.Max.Duration(),
		MaxElapsedTime:      0,
		Clock:               m.clock,
	}
	b.Reset()
	return b
}

// inBackoffLocked 节点是否仍在退避期
func (m *Manager) inBackoffLocked(e *peerEntry) bool {
	return !e.retryAt.IsZero() && m.clock.Now().Before(e.retryAt)
}

func (e *peerEntry) failWaiters(err error) {
	for _, w := range e.waiters {
		w <- err
	}
	e.waiters = nil
}
