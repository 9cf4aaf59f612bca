package host

import (
	"context"
	"errors"
	"fmt"
	"net"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// Start 按顺序启动各组件
//
// 任何一步失败时回滚已启动的部分，主机进入已停止状态，不能再次启动。
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrClosed
	}

	log.Info("正在启动节点", "peer", h.ID().ShortString())

	// 注册表从这里开始只读
	h.registry.Seal()
	log.Debug("能力注册表已封存",
		"transports", h.registry.IDs(types.KindTransport),
		"security", h.registry.IDs(types.KindSecurity),
		"muxers", h.registry.IDs(types.KindMuxer),
		"discovery", h.registry.IDs(types.KindDiscovery))

	if err := h.manager.Start(); err != nil {
		h.state = stateStopped
		return fmt.Errorf("start connection manager: %w", err)
	}

	// 生命周期上下文独立于 Start 的 ctx，只由 Stop 取消
	h.ctx, h.cancel = context.WithCancel(context.Background())

	if err := h.listenLocked(); err != nil {
		return h.abortLocked(err)
	}

	h.coordinator.Advertise(types.PeerInfo{ID: h.ID(), Addrs: h.listenerAddrsLocked()})
	if err := h.coordinator.Start(h.ctx); err != nil {
		return h.abortLocked(fmt.Errorf("start discovery: %w", err))
	}

	h.state = stateRunning
	addrs := h.listenerAddrsLocked()
	emit(h.emitters.started, types.EvtNodeStarted{Peer: h.ID(), Addrs: addrs})
	log.Info("节点已启动", "peer", h.ID().ShortString(), "addrs", addrs)
	return nil
}

// Stop 按启动的相反顺序停止，每一步等待完成
//
// 未启动或已停止时是空操作。
func (h *Host) Stop() error {
	h.mu.Lock()
	if h.state != stateRunning {
		h.state = stateStopped
		h.mu.Unlock()
		return nil
	}
	h.state = stateStopped
	h.mu.Unlock()

	log.Info("正在停止节点", "peer", h.ID().ShortString())

	h.coordinator.Stop()

	h.cancel()
	h.mu.Lock()
	err := h.closeListenersLocked()
	accepts := h.accepts
	h.mu.Unlock()
	if accepts != nil {
		err = multierr.Append(err, accepts.Wait())
	}
	h.inbound.Wait()

	err = multierr.Append(err, h.manager.Shutdown())

	emit(h.emitters.stopped, types.EvtNodeStopped{Peer: h.ID()})
	err = multierr.Append(err, h.emitters.Close())
	log.Info("节点已停止", "peer", h.ID().ShortString())
	return err
}

// abortLocked 回滚部分完成的启动
func (h *Host) abortLocked(cause error) error {
	h.state = stateStopped
	h.cancel()
	err := h.closeListenersLocked()
	if h.accepts != nil {
		err = multierr.Append(err, h.accepts.Wait())
	}
	h.inbound.Wait()
	err = multierr.Append(err, h.manager.Shutdown())
	if err != nil {
		log.Warn("启动回滚时出错", "error", err)
	}
	log.Error("节点启动失败", "error", cause)
	return cause
}

// listenLocked 在全部配置地址上监听并启动 accept 循环
func (h *Host) listenLocked() error {
	g := new(errgroup.Group)
	h.accepts = g

	for _, addr := range h.listenAddrs {
		t, ok := h.registry.TransportFor(addr)
		if !ok {
			return fmt.Errorf("listen %s: %w", addr, types.ErrNoTransport)
		}
		l, err := t.Listen(addr)
		if err != nil {
			return fmt.Errorf("%w: listen %s: %w", types.ErrTransport, addr, err)
		}
		h.listeners = append(h.listeners, l)
		log.Info("开始监听", "transport", t.ID(), "addr", l.Multiaddr())

		transportID := t.ID()
		g.Go(func() error {
			return h.acceptLoop(l, transportID)
		})
	}
	return nil
}

func (h *Host) listenerAddrsLocked() []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

func (h *Host) closeListenersLocked() error {
	var err error
	for _, l := range h.listeners {
		err = multierr.Append(err, l.Close())
	}
	h.listeners = nil
	return err
}

// acceptLoop 接受入站连接，监听器关闭后返回
func (h *Host) acceptLoop(l pkgif.Listener, transportID string) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if h.ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Warn("accept 失败，停止该监听器", "addr", l.Multiaddr(), "error", err)
			return fmt.Errorf("accept on %s: %w", l.Multiaddr(), err)
		}

		h.inbound.Add(1)
		go func() {
			defer h.inbound.Done()
			h.handleInbound(conn, transportID)
		}()
	}
}

// handleInbound 升级入站连接并交给连接管理器
func (h *Host) handleInbound(conn net.Conn, transportID string) {
	remote, err := manet.FromNetAddr(conn.RemoteAddr())
	if err != nil {
		remote = nil
	}

	sess, err := h.upgrader.Upgrade(h.ctx, conn, types.DirInbound, types.EmptyPeerID, transportID, remote)
	if err != nil {
		log.Debug("入站升级失败", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	if err := h.manager.AdmitInbound(sess); err != nil {
		log.Debug("入站会话未登记", "peer", sess.RemotePeer().ShortString(), "error", err)
	}
}
