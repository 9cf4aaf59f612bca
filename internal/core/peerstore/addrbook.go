// Package peerstore 实现地址簿
//
// 地址簿以节点身份为键，保存已知地址、最后可见时间与健康分。
// 已连接与拨号中节点的记录始终保留；已断开（或从未连接）的记录进入 LRU，
// 超过 RetainDisconnected 时淘汰最久未触达的记录。
//
// 配置了数据目录时，记录写穿到 badger，重启后恢复。
package peerstore

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/internal/core/storage"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.peerstore")

// 健康分参数
const (
	MaxHealth = 100
	MinHealth = -100

	SuccessDelta = 1
	FailureDelta = -2
)

// recordPrefix badger 中的记录前缀
const recordPrefix = "ps/r/"

// AddrBook 地址簿
type AddrBook struct {
	mu sync.Mutex

	records map[types.PeerID]*types.PeerRecord

	// idle 未连接记录的保留队列，淘汰时连带删除 records 中的记录。
	// 所有访问都在 mu 内，淘汰回调因此也运行在 mu 内。
	idle *lru.Cache[types.PeerID, struct{}]

	// dialing 拨号中的节点，不在保留队列中
	dialing map[types.PeerID]struct{}

	store *storage.Store
	now   func() time.Time
}

var _ pkgif.AddrBook = (*AddrBook)(nil)

// Option 地址簿选项
type Option func(*AddrBook)

// WithStore 启用持久化
func WithStore(s *storage.Store) Option {
	return func(b *AddrBook) { b.store = s }
}

// WithClock 替换时间源（测试使用）
func WithClock(now func() time.Time) Option {
	return func(b *AddrBook) { b.now = now }
}

// New 创建地址簿
func New(retain int, opts ...Option) (*AddrBook, error) {
	if retain <= 0 {
		retain = 1
	}
	b := &AddrBook{
		records: make(map[types.PeerID]*types.PeerRecord),
		dialing: make(map[types.PeerID]struct{}),
		now:     time.Now,
	}
	idle, err := lru.NewWithEvict(retain, b.onEvict)
	if err != nil {
		return nil, err
	}
	b.idle = idle
	for _, opt := range opts {
		opt(b)
	}

	if b.store != nil {
		if err := b.load(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *AddrBook) onEvict(id types.PeerID, _ struct{}) {
	rec, ok := b.records[id]
	if !ok || !b.evictable(rec) {
		return
	}
	delete(b.records, id)
	b.forget(id)
	log.Debug("淘汰地址簿记录", "peer", id.ShortString())
}

// evictable 记录是否受保留队列约束
func (b *AddrBook) evictable(rec *types.PeerRecord) bool {
	if rec.Connected {
		return false
	}
	_, dialing := b.dialing[rec.ID]
	return !dialing
}

// getOrCreate 返回记录，不存在时创建并放入保留队列
func (b *AddrBook) getOrCreate(id types.PeerID) *types.PeerRecord {
	rec, ok := b.records[id]
	if !ok {
		rec = &types.PeerRecord{ID: id}
		b.records[id] = rec
		b.idle.Add(id, struct{}{})
	}
	return rec
}

// touch 刷新未连接记录在保留队列中的位置
func (b *AddrBook) touch(rec *types.PeerRecord) {
	if b.evictable(rec) {
		b.idle.Add(rec.ID, struct{}{})
	}
}

// AddAddrs 合并发现或拨号得到的地址
func (b *AddrBook) AddAddrs(id types.PeerID, addrs []ma.Multiaddr, source string) {
	if id.IsEmpty() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.getOrCreate(id)
	rec.Addrs = types.AppendUniqueAddrs(rec.Addrs, addrs...)
	rec.LastSeen = b.now()
	if source != "" && !contains(rec.Sources, source) {
		rec.Sources = append(rec.Sources, source)
	}
	b.touch(rec)
	b.persist(rec)
}

// Addrs 返回已知地址
func (b *AddrBook) Addrs(id types.PeerID) []ma.Multiaddr {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[id]
	if !ok {
		return nil
	}
	return append([]ma.Multiaddr(nil), rec.Addrs...)
}

// Record 返回记录的值拷贝
func (b *AddrBook) Record(id types.PeerID) (types.PeerRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[id]
	if !ok {
		return types.PeerRecord{}, false
	}
	return copyRecord(rec), true
}

// Health 返回健康分，未知节点为 0
func (b *AddrBook) Health(id types.PeerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.records[id]; ok {
		return rec.Health
	}
	return 0
}

// AdjustHealth 调整健康分并返回新值，结果限制在 [MinHealth, MaxHealth]
func (b *AddrBook) AdjustHealth(id types.PeerID, delta int) int {
	if id.IsEmpty() {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.getOrCreate(id)
	rec.Health = clamp(rec.Health + delta)
	b.touch(rec)
	b.persist(rec)
	return rec.Health
}

// RecordSuccess 记录一次成功的升级
func (b *AddrBook) RecordSuccess(id types.PeerID) {
	h := b.AdjustHealth(id, SuccessDelta)
	log.Debug("健康分上调", "peer", id.ShortString(), "health", h)
}

// RecordFailure 记录一次失败的拨号或升级
func (b *AddrBook) RecordFailure(id types.PeerID) {
	h := b.AdjustHealth(id, FailureDelta)
	log.Debug("健康分下调", "peer", id.ShortString(), "health", h)
}

// MarkDialing 标记节点拨号中，记录脱离保留队列
//
// 之后由 MarkConnected 或 MarkDisconnected 结束。
func (b *AddrBook) MarkDialing(id types.PeerID) {
	if id.IsEmpty() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.getOrCreate(id)
	b.dialing[id] = struct{}{}
	b.idle.Remove(id)
}

// MarkConnected 标记节点已连接，记录脱离保留队列
func (b *AddrBook) MarkConnected(id types.PeerID, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.dialing, id)
	rec := b.getOrCreate(id)
	rec.Connected = true
	rec.SessionID = sessionID
	rec.LastSeen = b.now()
	b.idle.Remove(id)
	b.persist(rec)
}

// MarkDisconnected 标记节点已断开，记录重新进入保留队列
func (b *AddrBook) MarkDisconnected(id types.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.dialing, id)
	rec, ok := b.records[id]
	if !ok {
		return
	}
	rec.Connected = false
	rec.SessionID = ""
	rec.LastSeen = b.now()
	b.idle.Add(id, struct{}{})
	b.persist(rec)
}

// Peers 返回全部已知节点
func (b *AddrBook) Peers() []types.PeerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.PeerID, 0, len(b.records))
	for id := range b.records {
		out = append(out, id)
	}
	sort.Sort(types.PeerIDSlice(out))
	return out
}

// Records 返回全部记录的值拷贝
func (b *AddrBook) Records() []types.PeerRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.PeerRecord, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Candidates 返回可拨号的未连接节点
//
// 按健康分降序、最后可见时间降序排列，最多 limit 个（limit<=0 不限）。
func (b *AddrBook) Candidates(limit int, skip func(types.PeerID) bool) []types.PeerInfo {
	b.mu.Lock()
	recs := make([]*types.PeerRecord, 0, len(b.records))
	for id, rec := range b.records {
		if rec.Connected || len(rec.Addrs) == 0 {
			continue
		}
		if skip != nil && skip(id) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Health != recs[j].Health {
			return recs[i].Health > recs[j].Health
		}
		return recs[i].LastSeen.After(recs[j].LastSeen)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]types.PeerInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Info())
	}
	b.mu.Unlock()
	return out
}

// Len 返回记录数
func (b *AddrBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func copyRecord(rec *types.PeerRecord) types.PeerRecord {
	out := *rec
	out.Addrs = append([]ma.Multiaddr(nil), rec.Addrs...)
	out.Sources = append([]string(nil), rec.Sources...)
	return out
}

func clamp(h int) int {
	if h > MaxHealth {
		return MaxHealth
	}
	if h < MinHealth {
		return MinHealth
	}
	return h
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
