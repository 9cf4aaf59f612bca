package connmgr

import (
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// Notifiee 会话变化的接收方
//
// 回调在管理器锁之外串行调用，顺序与状态变化的发生顺序一致：
// 同一节点的 Disconnected 不会先于它的 Connected。实现不应阻塞。
type Notifiee interface {
	Connected(sess pkgif.Session)
	Disconnected(peer types.PeerID, reason types.DisconnectReason)
}

// NotifyBundle 用函数字段实现 Notifiee
type NotifyBundle struct {
	ConnectedF    func(pkgif.Session)
	DisconnectedF func(types.PeerID, types.DisconnectReason)
}

var _ Notifiee = (*NotifyBundle)(nil)

// Connected 调用 ConnectedF
func (nb *NotifyBundle) Connected(sess pkgif.Session) {
	if nb.ConnectedF != nil {
		nb.ConnectedF(sess)
	}
}

// Disconnected 调用 DisconnectedF
func (nb *NotifyBundle) Disconnected(peer types.PeerID, reason types.DisconnectReason) {
	if nb.DisconnectedF != nil {
		nb.DisconnectedF(peer, reason)
	}
}

// notification 锁内记录、锁外投递的通知
type notification struct {
	session pkgif.Session
	peer    types.PeerID
	reason  types.DisconnectReason
}

func connectedNote(sess pkgif.Session) notification {
	return notification{session: sess, peer: sess.RemotePeer()}
}

func disconnectedNote(peer types.PeerID, reason types.DisconnectReason) notification {
	return notification{peer: peer, reason: reason}
}

// enqueueLocked 按发生顺序登记通知，必须持有 m.mu
func (m *Manager) enqueueLocked(notes ...notification) {
	m.pending = append(m.pending, notes...)
}

// flush 在锁外投递已登记的通知
//
// 同一时刻只有一个投递者；拿不到 deliverMu 的调用方把通知留给当前投递者。
// 回调中再次触发通知不会死锁。
func (m *Manager) flush() {
	for {
		if !m.deliverMu.TryLock() {
			return
		}
		m.drainLocked()
		m.deliverMu.Unlock()

		// 释放 deliverMu 之后登记的通知可能没有投递者
		m.mu.Lock()
		more := len(m.pending) > 0
		m.mu.Unlock()
		if !more {
			return
		}
	}
}

// flushSync 投递全部已登记的通知后返回
func (m *Manager) flushSync() {
	m.deliverMu.Lock()
	m.drainLocked()
	m.deliverMu.Unlock()
}

// drainLocked 依次取出队首通知并投递，必须持有 deliverMu
func (m *Manager) drainLocked() {
	for {
		m.mu.Lock()
		notes := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(notes) == 0 {
			return
		}

		m.notifyMu.RLock()
		targets := append([]Notifiee(nil), m.notifiees...)
		m.notifyMu.RUnlock()

		for _, n := range notes {
			for _, t := range targets {
				if n.session != nil {
					t.Connected(n.session)
				} else {
					t.Disconnected(n.peer, n.reason)
				}
			}
		}
	}
}

// Notify 注册通知接收方
func (m *Manager) Notify(n Notifiee) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.notifiees = append(m.notifiees, n)
}
