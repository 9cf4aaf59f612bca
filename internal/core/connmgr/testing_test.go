package connmgr

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/peerstore"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// fakeSession 测试用会话
type fakeSession struct {
	id         string
	peer       types.PeerID
	lastActive time.Time

	once   sync.Once
	closed chan struct{}
}

var _ pkgif.Session = (*fakeSession)(nil)

func newFakeSession(peer types.PeerID) *fakeSession {
	return &fakeSession{
		id:         fmt.Sprintf("sess-%s-%d", peer.ShortString(), time.Now().UnixNano()),
		peer:       peer,
		lastActive: time.Unix(1_700_000_000, 0),
		closed:     make(chan struct{}),
	}
}

func (s *fakeSession) ID() string                    { return s.id }
func (s *fakeSession) LocalPeer() types.PeerID       { return types.TestPeerID("local") }
func (s *fakeSession) RemotePeer() types.PeerID      { return s.peer }
func (s *fakeSession) RemoteMultiaddr() ma.Multiaddr { return nil }
func (s *fakeSession) Stat() pkgif.SessionStat {
	return pkgif.SessionStat{Direction: types.DirOutbound, LastActive: s.lastActive}
}
func (s *fakeSession) OpenStream(context.Context) (pkgif.MuxedStream, error) {
	return nil, types.ErrSessionClosed
}
func (s *fakeSession) AcceptStream() (pkgif.MuxedStream, error) { return nil, types.ErrSessionClosed }
func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
func (s *fakeSession) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
func (s *fakeSession) CloseChan() <-chan struct{} { return s.closed }

// stubDialer 记录调用次数，DialF 为空时返回新会话
type stubDialer struct {
	mu    sync.Mutex
	calls map[types.PeerID]int
	total int

	DialF func(ctx context.Context, info types.PeerInfo) (pkgif.Session, error)
}

func (d *stubDialer) DialPeer(ctx context.Context, info types.PeerInfo) (pkgif.Session, error) {
	d.mu.Lock()
	if d.calls == nil {
		d.calls = make(map[types.PeerID]int)
	}
	d.calls[info.ID]++
	d.total++
	f := d.DialF
	d.mu.Unlock()

	if f != nil {
		return f(ctx, info)
	}
	return newFakeSession(info.ID), nil
}

func (d *stubDialer) Calls(id types.PeerID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

func (d *stubDialer) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// recorder 记录通知
type recorder struct {
	mu           sync.Mutex
	connected    []types.PeerID
	disconnected map[types.PeerID]types.DisconnectReason
}

func (r *recorder) Connected(sess pkgif.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, sess.RemotePeer())
}

func (r *recorder) Disconnected(peer types.PeerID, reason types.DisconnectReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected == nil {
		r.disconnected = make(map[types.PeerID]types.DisconnectReason)
	}
	r.disconnected[peer] = reason
}

func (r *recorder) Reason(peer types.PeerID) (types.DisconnectReason, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.disconnected[peer]
	return reason, ok
}

type harness struct {
	m      *Manager
	book   *peerstore.AddrBook
	clk    *clock.Mock
	dialer *stubDialer
	events *recorder
}

func testConfig(minPeers, maxPeers int) config.ConnManagerConfig {
	cfg := config.DefaultConnManagerConfig()
	cfg.MinPeers = minPeers
	cfg.MaxPeers = maxPeers
	cfg.Backoff.Jitter = 0
	cfg.MaxDialsPerSecond = 0
	return cfg
}

func newHarness(t *testing.T, cfg config.ConnManagerConfig) *harness {
	t.Helper()
	book, err := peerstore.New(100)
	require.NoError(t, err)

	h := &harness{
		book:   book,
		clk:    clock.NewMock(),
		dialer: &stubDialer{},
		events: &recorder{},
	}
	h.m, err = New(cfg, types.TestPeerID("local"), h.dialer, book, WithClock(h.clk))
	require.NoError(t, err)
	h.m.Notify(h.events)
	t.Cleanup(func() { _ = h.m.Shutdown() })
	return h
}

// candidate 在地址簿中登记带健康分的节点
func (h *harness) candidate(name string, health int) types.PeerInfo {
	id := types.TestPeerID(name)
	addr := ma.StringCast(fmt.Sprintf("/ip4/10.0.0.%d/tcp/4001", len(name)))
	h.book.AddAddrs(id, []ma.Multiaddr{addr}, "test")
	h.book.AdjustHealth(id, health)
	return types.PeerInfo{ID: id, Addrs: []ma.Multiaddr{addr}}
}

func (h *harness) connect(t *testing.T, info types.PeerInfo) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.m.Connect(ctx, info))
}
