// Package discovery 实现发现协调器
//
// 协调器为每个发现机制启动一个 goroutine，把各机制的候选合并到同一个通道，
// 由单个消费者写入地址簿、发布 EvtPeerDiscovered，并在开启自动拨号时
// 限速转交给连接管理器。
//
// 每个机制是独立的故障域：Discover 返回错误或候选流意外结束时，
// 协调器记录日志并按指数退避重新启动该机制，不影响其他机制。
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	arc "github.com/hashicorp/golang-lru/arc/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-nodehost/internal/core/metrics"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.discovery")

const (
	// restartInitial 机制重启的初始退避
	restartInitial = time.Second

	// seenCacheSize 去重缓存容量
	seenCacheSize = 1024

	// defaultDedupWindow 同一候选在窗口内只转交一次
	defaultDedupWindow = 30 * time.Second

	mergedBuffer = 64
)

// Admitter 接收候选的下游，通常是连接管理器
type Admitter interface {
	Admit(ctx context.Context, info types.PeerInfo) error
}

// AdmitterFunc 函数形式的 Admitter
type AdmitterFunc func(ctx context.Context, info types.PeerInfo) error

// Admit 调用 f
func (f AdmitterFunc) Admit(ctx context.Context, info types.PeerInfo) error {
	return f(ctx, info)
}

// found 带来源的候选
type found struct {
	source string
	info   types.PeerInfo
}

// Coordinator 发现协调器
type Coordinator struct {
	local      types.PeerID
	mechanisms []pkgif.Discoverer
	book       pkgif.AddrBook

	admitter Admitter
	emitter  pkgif.Emitter
	metrics  *metrics.Metrics
	clock    clock.Clock
	limiter  *rate.Limiter

	restartMax  time.Duration
	dedupWindow time.Duration
	seen        *arc.ARCCache[string, time.Time]

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	merged  chan found
}

// Option 协调器选项
type Option func(*Coordinator)

// WithAdmitter 设置自动拨号的下游
func WithAdmitter(a Admitter) Option {
	return func(c *Coordinator) { c.admitter = a }
}

// WithEmitter 设置 EvtPeerDiscovered 发射器
func WithEmitter(e pkgif.Emitter) Option {
	return func(c *Coordinator) { c.emitter = e }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock 替换时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithRateLimit 每秒最多转交 perSecond 个候选，<=0 不限
func WithRateLimit(perSecond float64) Option {
	return func(c *Coordinator) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRestartBackoff 机制重启的最大退避
func WithRestartBackoff(d time.Duration) Option {
	return func(c *Coordinator) { c.restartMax = d }
}

// WithDedupWindow 同一候选重复转交的最小间隔
func WithDedupWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.dedupWindow = d }
}

// New 创建协调器
func New(local types.PeerID, book pkgif.AddrBook, mechanisms []pkgif.Discoverer, opts ...Option) (*Coordinator, error) {
	if book == nil {
		return nil, ErrNilAddrBook
	}
	seen, err := arc.NewARC[string, time.Time](seenCacheSize)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		local:       local,
		mechanisms:  mechanisms,
		book:        book,
		clock:       clock.New(),
		limiter:     rate.NewLimiter(rate.Inf, 0),
		restartMax:  time.Minute,
		dedupWindow: defaultDedupWindow,
		seen:        seen,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mechanisms 返回已注册机制的名称
func (c *Coordinator) Mechanisms() []string {
	names := make([]string, 0, len(c.mechanisms))
	for _, m := range c.mechanisms {
		names = append(names, m.Name())
	}
	return names
}

// Advertise 把本节点信息交给需要公布地址的机制，须在 Start 之前调用
func (c *Coordinator) Advertise(self types.PeerInfo) {
	for _, m := range c.mechanisms {
		if a, ok := m.(pkgif.Advertiser); ok {
			a.Advertise(self)
		}
	}
}

// Start 启动全部机制，立即返回
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.merged = make(chan found, mergedBuffer)

	var producers sync.WaitGroup
	for _, m := range c.mechanisms {
		producers.Add(1)
		c.wg.Add(1)
		go func(m pkgif.Discoverer) {
			defer c.wg.Done()
			defer producers.Done()
			c.run(ctx, m)
		}(m)
	}

	// 所有生产者退出后关闭合并通道
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		producers.Wait()
		close(c.merged)
	}()
	go func() {
		defer c.wg.Done()
		c.consume(ctx)
	}()

	log.Info("发现协调器已启动", "mechanisms", c.Mechanisms())
	return nil
}

// Stop 取消全部机制并等待退出，可重复调用
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	log.Info("发现协调器已停止")
}

// run 运行单个机制，出错后按退避重启，直到 ctx 结束
func (c *Coordinator) run(ctx context.Context, m pkgif.Discoverer) {
	name := m.Name()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = restartInitial
	if c.restartMax < restartInitial {
		bo.InitialInterval = c.restartMax
	}
	bo.MaxInterval = c.restartMax
	bo.MaxElapsedTime = 0
	bo.Clock = c.clock
	bo.Reset()

	for {
		err := c.runOnce(ctx, m, bo)
		if ctx.Err() != nil {
			return
		}

		c.metrics.ObserveDiscoveryError(name)
		delay := bo.NextBackOff()
		log.Warn("发现机制异常，稍后重启", "mechanism", name, "retry_in", delay, "error", err)

		timer := c.clock.Timer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// runOnce 启动一次机制并转发其候选，返回结束原因
func (c *Coordinator) runOnce(ctx context.Context, m pkgif.Discoverer, bo backoff.BackOff) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("发现机制 panic", "mechanism", m.Name(), "recover", r)
			err = errors.New("discovery: mechanism panicked")
		}
	}()

	ch, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	produced := false
	for info := range ch {
		if !produced {
			produced = true
			bo.Reset()
		}
		select {
		case c.merged <- found{source: m.Name(), info: info}:
		case <-ctx.Done():
			// 排空，让机制的 goroutine 结束
			for range ch {
			}
			return ctx.Err()
		}
	}
	return ErrMechanismStopped
}

// consume 处理合并通道中的候选
func (c *Coordinator) consume(ctx context.Context) {
	for f := range c.merged {
		c.handle(ctx, f)
	}
}

func (c *Coordinator) handle(ctx context.Context, f found) {
	info := f.info
	if info.ID == c.local || len(info.Addrs) == 0 {
		return
	}

	c.metrics.ObserveDiscovered(f.source)
	if info.HasIdentity() {
		c.book.AddAddrs(info.ID, info.Addrs, f.source)
	}

	if !c.firstSighting(info) {
		return
	}

	log.Debug("发现节点", "peer", info.ID.ShortString(), "source", f.source, "addrs", len(info.Addrs))
	if c.emitter != nil {
		if err := c.emitter.Emit(types.EvtPeerDiscovered{Peer: info, Source: f.source}); err != nil {
			log.Debug("发布发现事件失败", "error", err)
		}
	}

	if c.admitter == nil || ctx.Err() != nil {
		return
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	if err := c.admitter.Admit(ctx, info); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("候选未被接纳", "peer", info.ID.ShortString(), "source", f.source, "error", err)
	}
}

// firstSighting 去重窗口内第一次见到该候选时返回 true
func (c *Coordinator) firstSighting(info types.PeerInfo) bool {
	key := string(info.ID)
	if key == "" {
		key = info.Addrs[0].String()
	}
	now := c.clock.Now()
	if last, ok := c.seen.Get(key); ok && now.Sub(last) < c.dedupWindow {
		return false
	}
	c.seen.Add(key, now)
	return true
}
