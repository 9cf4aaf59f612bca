package host

import (
	"go.uber.org/multierr"

	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// emitters 主机发布的事件
type emitters struct {
	connected    pkgif.Emitter
	disconnected pkgif.Emitter
	started      pkgif.Emitter
	stopped      pkgif.Emitter
}

func newEmitters(bus pkgif.EventBus) (emitters, error) {
	var (
		em  emitters
		err error
	)
	if em.connected, err = bus.Emitter(new(types.EvtPeerConnected)); err != nil {
		return emitters{}, err
	}
	if em.disconnected, err = bus.Emitter(new(types.EvtPeerDisconnected)); err != nil {
		return emitters{}, err
	}
	if em.started, err = bus.Emitter(new(types.EvtNodeStarted), pkgif.Stateful()); err != nil {
		return emitters{}, err
	}
	if em.stopped, err = bus.Emitter(new(types.EvtNodeStopped), pkgif.Stateful()); err != nil {
		return emitters{}, err
	}
	return em, nil
}

func (em emitters) Close() error {
	return multierr.Combine(
		em.connected.Close(),
		em.disconnected.Close(),
		em.started.Close(),
		em.stopped.Close(),
	)
}

var _ connmgr.Notifiee = (*Host)(nil)

// Connected 连接管理器登记了新会话
func (h *Host) Connected(sess pkgif.Session) {
	peer := sess.RemotePeer()
	stat := sess.Stat()
	log.Info("已连接到节点",
		"peer", peer.ShortString(),
		"direction", stat.Direction,
		"addr", sess.RemoteMultiaddr(),
		"security", stat.Security,
		"muxer", stat.Muxer)

	emit(h.emitters.connected, types.EvtPeerConnected{
		Peer:      peer,
		Direction: stat.Direction,
		Session:   sess,
	})
}

// Disconnected 会话已关闭
func (h *Host) Disconnected(peer types.PeerID, reason types.DisconnectReason) {
	log.Info("与节点断开", "peer", peer.ShortString(), "reason", reason)
	emit(h.emitters.disconnected, types.EvtPeerDisconnected{Peer: peer, Reason: reason})
}

func emit(em pkgif.Emitter, evt any) {
	if err := em.Emit(evt); err != nil {
		log.Debug("发布事件失败", "event", evt, "error", err)
	}
}
