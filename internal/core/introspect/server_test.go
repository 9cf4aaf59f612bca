package introspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/peerstore"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

type stubSource struct {
	id       types.PeerID
	addrs    []ma.Multiaddr
	book     *peerstore.AddrBook
	registry *capability.Registry
	states   map[types.PeerID]types.PeerState
}

func (s *stubSource) ID() types.PeerID                         { return s.id }
func (s *stubSource) Addrs() []ma.Multiaddr                    { return s.addrs }
func (s *stubSource) Sessions() []pkgif.Session                { return nil }
func (s *stubSource) PeerState(p types.PeerID) types.PeerState { return s.states[p] }
func (s *stubSource) AddrBook() pkgif.AddrBook                 { return s.book }
func (s *stubSource) Registry() *capability.Registry           { return s.registry }

type stubDiscoverer struct{}

func (stubDiscoverer) Name() string { return "stub" }

func (stubDiscoverer) Discover(context.Context) (<-chan types.PeerInfo, error) {
	ch := make(chan types.PeerInfo)
	close(ch)
	return ch, nil
}

func newSource(t *testing.T) *stubSource {
	t.Helper()
	book, err := peerstore.New(10)
	require.NoError(t, err)
	return &stubSource{
		id:       types.TestPeerID("self"),
		addrs:    []ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/4001")},
		book:     book,
		registry: capability.NewRegistry(),
		states:   make(map[types.PeerID]types.PeerState),
	}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{}, newSource(t))
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Node(t *testing.T) {
	src := newSource(t)
	src.book.AddAddrs(types.TestPeerID("a"), []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/1")}, "mdns")
	s := New(Config{}, src)

	rec := get(t, s, "/debug/node")
	require.Equal(t, http.StatusOK, rec.Code)

	var info NodeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, src.id.String(), info.ID)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001"}, info.Addrs)
	assert.Equal(t, 1, info.KnownPeer)
	assert.Equal(t, 0, info.Sessions)
}

func TestServer_Peers(t *testing.T) {
	src := newSource(t)
	a := types.TestPeerID("a")
	src.book.AddAddrs(a, []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/1")}, "bootstrap")
	src.book.AdjustHealth(a, 3)
	src.states[a] = types.StateDialing
	s := New(Config{}, src)

	rec := get(t, s, "/debug/peers")
	require.Equal(t, http.StatusOK, rec.Code)

	var peers []PeerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, a.String(), peers[0].ID)
	assert.Equal(t, types.StateDialing.String(), peers[0].State)
	assert.Equal(t, 3, peers[0].Health)
	assert.Equal(t, []string{"bootstrap"}, peers[0].Sources)
}

func TestServer_Capabilities(t *testing.T) {
	src := newSource(t)
	require.NoError(t, src.registry.Register(types.KindDiscovery, capability.Descriptor{ID: "stub", Impl: stubDiscoverer{}}))
	s := New(Config{}, src)

	rec := get(t, s, "/debug/capabilities")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sealed       bool                `json:"sealed"`
		Capabilities map[string][]string `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Sealed)
	assert.Equal(t, []string{"stub"}, body.Capabilities["discovery"])
	assert.Empty(t, body.Capabilities["transport"])
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "nodehost_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Config{Gatherer: reg}, newSource(t))
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nodehost_test_total 1")

	// 未配置指标来源时不注册 /metrics
	s = New(Config{}, newSource(t))
	assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)
}

func TestServer_StartStop(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, newSource(t))
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop())
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Stop(), "重复停止是空操作")
}
