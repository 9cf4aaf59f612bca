package connmgr

import (
	"context"
	"errors"
	"time"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// Admit 提交一个候选节点
//
// 地址先合并进地址簿。自身、Dialing/Connected/Pruned 状态与退避期内的
// 节点是空操作；连接池已满且不足以替换时不拨号，这不是错误。
func (m *Manager) Admit(ctx context.Context, info types.PeerInfo) error {
	return quiet(m.admit(ctx, info, admitExplicit))
}

// AdmitDiscovered 提交发现机制找到的候选
//
// 与 Admit 不同，只在会话数（含拨号中）低于 minPeers 时拨号；
// 显式的 Admit/Connect 仍然可以把连接池填到 maxPeers。
func (m *Manager) AdmitDiscovered(ctx context.Context, info types.PeerInfo) error {
	return quiet(m.admit(ctx, info, admitDiscovered))
}

func quiet(_ <-chan error, err error) error {
	if errors.Is(err, ErrNotAdmitted) || errors.Is(err, ErrDialBackoff) {
		return nil
	}
	return err
}

// Connect 提交候选节点并等待结果
//
// 已连接时立即返回 nil；节点正在被裁剪时返回 ErrNotConnected。
func (m *Manager) Connect(ctx context.Context, info types.PeerInfo) error {
	wait, err := m.admit(ctx, info, admitWait)
	if err != nil || wait == nil {
		return err
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admitMode 准入方式
type admitMode int

const (
	admitExplicit   admitMode = iota // 不等待结果
	admitWait                        // 返回等待拨号结果的通道
	admitDiscovered                  // 只在低于 minPeers 时拨号
)

// admit 串行化的准入路径
//
// admitWait 时返回等待拨号结果的通道；返回 nil 通道表示已连接。
func (m *Manager) admit(_ context.Context, info types.PeerInfo, mode admitMode) (<-chan error, error) {
	if info.ID == m.local && !info.ID.IsEmpty() {
		return nil, nil
	}
	if len(info.Addrs) == 0 && info.ID.IsEmpty() {
		return nil, types.ErrNoAddresses
	}
	if info.HasIdentity() && len(info.Addrs) > 0 {
		m.book.AddAddrs(info.ID, info.Addrs, "")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	var wait chan error
	if mode == admitWait {
		wait = make(chan error, 1)
	}

	// 身份未知的候选只能先拨号，握手后再归入节点表
	if !info.HasIdentity() {
		if !m.wantsDiscoveredLocked(mode) || !m.hasRoomLocked(0) {
			return nil, ErrNotAdmitted
		}
		m.anonDialing++
		m.startDialLocked(info, wait)
		return wait, nil
	}

	e := m.entry(info.ID)
	switch e.state {
	case types.StateConnected:
		return nil, nil
	case types.StatePruned:
		// 会话正在关闭，转为 Disconnected 之后才能重新拨号
		if mode == admitWait {
			return nil, ErrNotConnected
		}
		return nil, nil
	case types.StateDialing:
		if wait != nil {
			e.waiters = append(e.waiters, wait)
		}
		return wait, nil
	}

	if m.inBackoffLocked(e) {
		log.Debug("节点处于退避期", "peer", info.ID.ShortString(), "retryAt", e.retryAt)
		return nil, ErrDialBackoff
	}

	if !m.wantsDiscoveredLocked(mode) {
		log.Debug("会话数已达 minPeers，不自动拨号",
			"peer", info.ID.ShortString(),
			"open", m.openLocked(),
			"minPeers", m.cfg.MinPeers)
		return nil, ErrNotAdmitted
	}

	health := m.book.Health(info.ID)
	if !m.hasRoomLocked(health) {
		log.Debug("连接池已满，候选未被接纳",
			"peer", info.ID.ShortString(),
			"health", health,
			"open", m.openLocked(),
			"maxPeers", m.cfg.MaxPeers)
		return nil, ErrNotAdmitted
	}
	if len(m.book.Addrs(info.ID)) == 0 {
		return nil, types.ErrNoAddresses
	}

	e.state = types.StateDialing
	m.book.MarkDialing(info.ID)
	if wait != nil {
		e.waiters = append(e.waiters, wait)
	}
	m.startDialLocked(types.PeerInfo{ID: info.ID, Addrs: m.book.Addrs(info.ID)}, nil)
	m.updateMetricsLocked()
	return wait, nil
}

// wantsDiscoveredLocked 发现的候选只在会话数低于 minPeers 时拨号
func (m *Manager) wantsDiscoveredLocked(mode admitMode) bool {
	return mode != admitDiscovered || m.openLocked() < m.cfg.MinPeers
}

// hasRoomLocked 是否可以再发起一次拨号
//
// 未满时总是可以；已满时候选健康分必须高于最低的可裁剪会话。
func (m *Manager) hasRoomLocked(health int) bool {
	if m.openLocked() < m.cfg.MaxPeers {
		return true
	}
	lowest, ok := m.lowestPrunableHealthLocked()
	return ok && health > lowest
}

// startDialLocked 在锁外的协程中拨号
//
// anonWait 只用于身份未知的候选，已知身份的等待者挂在节点条目上。
func (m *Manager) startDialLocked(info types.PeerInfo, anonWait chan error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout.Duration())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		var (
			sess pkgif.Session
			err  error
		)
		if m.limiter != nil {
			err = m.limiter.Wait(ctx)
		}
		if err == nil {
			sess, err = m.dialer.DialPeer(ctx, info)
		}
		m.metrics.ObserveDial(err)
		m.dialDone(info, sess, err, anonWait)
	}()
}

// dialDone 在锁内应用拨号结果
func (m *Manager) dialDone(info types.PeerInfo, sess pkgif.Session, dialErr error, anonWait chan error) {
	var toClose pkgif.Session
	anonymous := !info.HasIdentity()

	m.mu.Lock()
	if anonymous {
		m.anonDialing--
	}

	switch {
	case m.closed:
		toClose = sess
		if anonWait != nil {
			anonWait <- ErrManagerClosed
		}

	case dialErr != nil:
		if !anonymous {
			e := m.entry(info.ID)
			if e.state == types.StateDialing {
				e.state = types.StateDisconnected
				if e.bo == nil {
					e.bo = m.newBackoff()
				}
				delay := e.bo.NextBackOff()
				e.retryAt = m.clock.Now().Add(delay)
				m.book.MarkDisconnected(info.ID)
				log.Debug("拨号失败，进入退避",
					"peer", info.ID.ShortString(),
					"retryIn", delay,
					"error", dialErr)
			}
			e.failWaiters(dialErr)
		} else {
			log.Debug("拨号失败", "addrs", info.Addrs, "error", dialErr)
		}
		if anonWait != nil {
			anonWait <- dialErr
		}

	default:
		if !m.installLocked(sess, info.ID) {
			toClose = sess
		}
		if anonWait != nil {
			anonWait <- nil
		}
	}
	m.updateMetricsLocked()
	m.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close()
	}
	m.flush()
}

// AdmitInbound 通过串行化路径登记入站会话
//
// 节点已有会话时新会话作为重复会话关闭。
func (m *Manager) AdmitInbound(sess pkgif.Session) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = sess.Close()
		return ErrManagerClosed
	}
	installed := m.installLocked(sess, types.EmptyPeerID)
	m.updateMetricsLocked()
	m.mu.Unlock()

	if !installed {
		_ = sess.Close()
	}
	m.flush()
	return nil
}

// installLocked 把会话放入节点表
//
// dialed 是发起拨号时的身份（入站或匿名为空），其等待者在这里得到结果。
// 返回 false 表示节点已有会话，调用方负责关闭新会话。
func (m *Manager) installLocked(sess pkgif.Session, dialed types.PeerID) bool {
	peer := sess.RemotePeer()

	// 拨号身份与握手身份不一致时，拨号条目按失败处理
	if !dialed.IsEmpty() && dialed != peer {
		if e, ok := m.peers[dialed]; ok && e.state == types.StateDialing {
			e.state = types.StateDisconnected
			m.book.MarkDisconnected(dialed)
			e.failWaiters(types.ErrPeerIdentityMismatch)
		}
	}

	e := m.entry(peer)
	if e.session != nil {
		log.Debug("关闭重复会话", "peer", peer.ShortString(), "session", sess.ID())
		m.metrics.ObserveDisconnect(types.ReasonDuplicate)
		e.failWaiters(nil)
		return false
	}

	e.state = types.StateConnected
	e.session = sess
	e.closing = types.ReasonUnknown
	e.retryAt = time.Time{}
	if e.bo != nil {
		e.bo.Reset()
	}
	e.failWaiters(nil)
	m.book.MarkConnected(peer, sess.ID())

	// 先登记 Connected 再启动 watch，断开通知必然排在其后
	m.enqueueLocked(connectedNote(sess))
	m.wg.Add(1)
	go m.watch(peer, sess)

	if m.countLocked(types.StateConnected) > m.cfg.MaxPeers {
		m.triggerPrune()
	}
	return true
}

// watch 等待会话关闭
func (m *Manager) watch(peer types.PeerID, sess pkgif.Session) {
	defer m.wg.Done()

	select {
	case <-sess.CloseChan():
		m.sessionClosed(peer, sess)
	case <-m.ctx.Done():
		// Shutdown 负责关闭会话与通知
	}
}

// sessionClosed 会话关闭后转为 Disconnected
func (m *Manager) sessionClosed(peer types.PeerID, sess pkgif.Session) {
	m.mu.Lock()
	e, ok := m.peers[peer]
	if m.closed || !ok || e.session != sess {
		m.mu.Unlock()
		return
	}

	reason := types.ReasonRemoteClosed
	switch {
	case e.state == types.StatePruned:
		reason = types.ReasonPruned
	case e.closing != types.ReasonUnknown:
		reason = e.closing
	}
	e.state = types.StateDisconnected
	e.session = nil
	e.closing = types.ReasonUnknown
	m.book.MarkDisconnected(peer)
	m.metrics.ObserveDisconnect(reason)
	m.enqueueLocked(disconnectedNote(peer, reason))
	m.updateMetricsLocked()
	m.mu.Unlock()

	log.Debug("会话已关闭", "peer", peer.ShortString(), "reason", reason)
	m.flush()
}
