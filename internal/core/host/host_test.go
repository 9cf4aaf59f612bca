package host

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	"github.com/dep2p/go-nodehost/internal/core/discovery"
	"github.com/dep2p/go-nodehost/internal/core/eventbus"
	"github.com/dep2p/go-nodehost/internal/core/identity"
	"github.com/dep2p/go-nodehost/internal/core/muxer"
	"github.com/dep2p/go-nodehost/internal/core/peerstore"
	"github.com/dep2p/go-nodehost/internal/core/security"
	"github.com/dep2p/go-nodehost/internal/core/transport/tcp"
	"github.com/dep2p/go-nodehost/internal/core/upgrader"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var loopback = ma.StringCast("/ip4/127.0.0.1/tcp/0")

type testNode struct {
	*Host
	book *peerstore.AddrBook
	bus  *eventbus.Bus
}

// newTestNode 手工装配一个只用 TCP 的节点
func newTestNode(t *testing.T, secs []string, listen ...ma.Multiaddr) *testNode {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)

	reg := capability.NewRegistry()
	tr := tcp.New(5 * time.Second)
	require.NoError(t, reg.Register(types.KindTransport, capability.Descriptor{ID: tr.ID(), Impl: tr}))
	for _, name := range secs {
		st, err := security.Build(name, id)
		require.NoError(t, err)
		require.NoError(t, reg.Register(types.KindSecurity, capability.Descriptor{ID: st.ID(), Impl: st}))
	}
	m, err := muxer.Build(config.MuxerYamux)
	require.NoError(t, err)
	require.NoError(t, reg.Register(types.KindMuxer, capability.Descriptor{ID: m.ID(), Impl: m}))

	book, err := peerstore.New(50)
	require.NoError(t, err)

	up, err := upgrader.New(id, reg, upgrader.WithAddrBook(book), upgrader.WithHandshakeTimeout(5*time.Second))
	require.NoError(t, err)

	dialer, err := NewDialer(reg, up, book)
	require.NoError(t, err)

	cfg := config.DefaultConnManagerConfig()
	cfg.MinPeers = 0
	cfg.MaxDialsPerSecond = 0
	cfg.Backoff.Jitter = 0
	mgr, err := connmgr.New(cfg, id.PeerID(), dialer, book)
	require.NoError(t, err)

	coord, err := discovery.New(id.PeerID(), book, nil)
	require.NoError(t, err)

	bus := eventbus.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	if len(listen) == 0 {
		listen = []ma.Multiaddr{loopback}
	}
	h, err := New(Params{
		Identity:    id,
		Registry:    reg,
		Upgrader:    up,
		Manager:     mgr,
		Coordinator: coord,
		AddrBook:    book,
		EventBus:    bus,
		ListenAddrs: listen,
	})
	require.NoError(t, err)
	return &testNode{Host: h, book: book, bus: bus}
}

func startNode(t *testing.T, secs ...string) *testNode {
	t.Helper()
	if len(secs) == 0 {
		secs = []string{config.SecurityNoise}
	}
	n := newTestNode(t, secs)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func subscribe(t *testing.T, bus pkgif.EventBus, evt any) pkgif.Subscription {
	t.Helper()
	sub, err := bus.Subscribe(evt, pkgif.BufSize(16))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func next(t *testing.T, sub pkgif.Subscription) any {
	t.Helper()
	select {
	case e := <-sub.Out():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrMissingDep)
}

func TestHost_ConnectAndStream(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	require.Len(t, a.Addrs(), 1)

	aConnected := subscribe(t, a.bus, new(types.EvtPeerConnected))
	bConnected := subscribe(t, b.bus, new(types.EvtPeerConnected))
	bDisconnected := subscribe(t, b.bus, new(types.EvtPeerDisconnected))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Connect(ctx, b.Info()))

	evt := next(t, aConnected).(types.EvtPeerConnected)
	assert.Equal(t, b.ID(), evt.Peer)
	assert.Equal(t, types.DirOutbound, evt.Direction)
	_, ok := evt.Session.(pkgif.Session)
	assert.True(t, ok)

	evt = next(t, bConnected).(types.EvtPeerConnected)
	assert.Equal(t, a.ID(), evt.Peer)
	assert.Equal(t, types.DirInbound, evt.Direction)

	assert.Equal(t, types.StateConnected, a.PeerState(b.ID()))
	assert.Equal(t, []types.PeerID{b.ID()}, a.Peers())
	require.NoError(t, a.Connect(ctx, b.Info()), "已连接时是空操作")
	assert.Len(t, a.Sessions(), 1)

	// 子流回显
	bSess := evt.Session.(pkgif.Session)
	go func() {
		s, err := bSess.AcceptStream()
		if err != nil {
			return
		}
		defer s.Close()
		_, _ = io.Copy(s, s)
	}()
	s, err := a.NewStream(ctx, b.ID())
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	_ = s.Close()

	_, err = a.NewStream(ctx, types.TestPeerID("stranger"))
	assert.ErrorIs(t, err, connmgr.ErrNotConnected)

	require.NoError(t, a.Stop())
	dis := next(t, bDisconnected).(types.EvtPeerDisconnected)
	assert.Equal(t, a.ID(), dis.Peer)
	assert.Equal(t, types.ReasonRemoteClosed, dis.Reason)
}

func TestHost_NoCommonEncryption(t *testing.T) {
	a := startNode(t, config.SecurityNoise)
	b := startNode(t, config.SecurityTLS)
	connected := subscribe(t, a.bus, new(types.EvtPeerConnected))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.Connect(ctx, b.Info())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoCommonCapability)
	assert.ErrorIs(t, err, types.ErrNegotiation)

	assert.Equal(t, types.StateDisconnected, a.PeerState(b.ID()))
	assert.Less(t, a.book.Health(b.ID()), 0)
	_, ok := a.Session(b.ID())
	assert.False(t, ok)
	assert.Empty(t, a.Sessions())

	select {
	case e := <-connected.Out():
		t.Fatalf("unexpected connected event %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHost_LifecycleEvents(t *testing.T) {
	n := newTestNode(t, []string{config.SecurityNoise})
	started := subscribe(t, n.bus, new(types.EvtNodeStarted))
	stopped := subscribe(t, n.bus, new(types.EvtNodeStopped))

	assert.ErrorIs(t, n.Connect(context.Background(), types.PeerInfo{}), ErrNotStarted)

	require.NoError(t, n.Start(context.Background()))
	assert.True(t, n.Registry().Sealed())
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)

	evt := next(t, started).(types.EvtNodeStarted)
	assert.Equal(t, n.ID(), evt.Peer)
	require.Len(t, evt.Addrs, 1)
	assert.Equal(t, n.Addrs()[0], evt.Addrs[0])

	require.NoError(t, n.Stop())
	assert.Equal(t, n.ID(), next(t, stopped).(types.EvtNodeStopped).Peer)
	assert.Empty(t, n.Addrs())

	require.NoError(t, n.Stop(), "重复停止是空操作")
	assert.ErrorIs(t, n.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, n.Connect(context.Background(), types.PeerInfo{}), ErrNotStarted)
}

func TestHost_StartFailsWithoutTransport(t *testing.T) {
	n := newTestNode(t, []string{config.SecurityNoise}, loopback, ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))

	err := n.Start(context.Background())
	assert.ErrorIs(t, err, types.ErrNoTransport)
	assert.Empty(t, n.Addrs(), "已建立的监听被回滚")
	assert.ErrorIs(t, n.Start(context.Background()), ErrClosed)
	require.NoError(t, n.Stop())
}
