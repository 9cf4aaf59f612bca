package connmgr

import (
	"sort"
	"time"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// pruneCandidate 可裁剪的会话
type pruneCandidate struct {
	peer       types.PeerID
	session    pkgif.Session
	health     int
	lastActive time.Time
}

// prunableLocked 返回按裁剪优先级排序的候选
//
// 健康分低的在前；健康分相同时最久未活跃的在前。受保护节点不参与。
func (m *Manager) prunableLocked() []pruneCandidate {
	out := make([]pruneCandidate, 0, len(m.peers))
	for id, e := range m.peers {
		if e.state != types.StateConnected || m.protects.IsProtected(id, "") {
			continue
		}
		out = append(out, pruneCandidate{
			peer:       id,
			session:    e.session,
			health:     m.book.Health(id),
			lastActive: e.session.Stat().LastActive,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].health != out[j].health {
			return out[i].health < out[j].health
		}
		if !out[i].lastActive.Equal(out[j].lastActive) {
			return out[i].lastActive.Before(out[j].lastActive)
		}
		return out[i].peer < out[j].peer
	})
	return out
}

// lowestPrunableHealthLocked 返回可裁剪会话中的最低健康分
func (m *Manager) lowestPrunableHealthLocked() (int, bool) {
	cands := m.prunableLocked()
	if len(cands) == 0 {
		return 0, false
	}
	return cands[0].health, true
}

// prune 把会话数裁剪到 maxPeers
//
// 受害者先转为 Pruned，会话在锁外关闭，之后由 watch 转为 Disconnected。
func (m *Manager) prune() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	excess := m.countLocked(types.StateConnected) - m.cfg.MaxPeers
	if excess <= 0 {
		m.mu.Unlock()
		return
	}

	cands := m.prunableLocked()
	if excess > len(cands) {
		excess = len(cands)
	}
	victims := cands[:excess]
	for _, v := range victims {
		m.peers[v.peer].state = types.StatePruned
	}
	m.updateMetricsLocked()
	m.mu.Unlock()

	for _, v := range victims {
		log.Info("裁剪节点", "peer", v.peer.ShortString(), "health", v.health, "lastActive", v.lastActive)
		if err := v.session.Close(); err != nil {
			log.Debug("关闭被裁剪会话出错", "peer", v.peer.ShortString(), "error", err)
		}
	}
}

// maintain 会话不足 minPeers 时从地址簿补充拨号
func (m *Manager) maintain() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	need := m.cfg.MinPeers - m.openLocked()
	if need <= 0 {
		m.mu.Unlock()
		return
	}
	busy := make(map[types.PeerID]struct{}, len(m.peers))
	for id, e := range m.peers {
		if e.state == types.StateDialing || e.state == types.StateConnected ||
			e.state == types.StatePruned || m.inBackoffLocked(e) {
			busy[id] = struct{}{}
		}
	}
	m.mu.Unlock()

	cands := m.book.Candidates(need, func(id types.PeerID) bool {
		_, skip := busy[id]
		return skip || id == m.local
	})
	if len(cands) == 0 {
		return
	}
	log.Debug("会话不足，补充拨号", "need", need, "candidates", len(cands))
	for _, c := range cands {
		if err := m.Admit(m.ctx, c); err != nil {
			log.Debug("补充拨号未能发起", "peer", c.ID.ShortString(), "error", err)
		}
	}
}
