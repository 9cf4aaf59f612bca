package capability

import (
	"context"
	"net"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// ============================================================================
//                              测试桩
// ============================================================================

type stubMuxer struct{ id string }

func (m stubMuxer) ID() string { return m.id }
func (m stubMuxer) NewConn(net.Conn, bool) (pkgif.MuxedConn, error) {
	return nil, nil
}

type stubTransport struct {
	id    string
	proto int
}

func (t stubTransport) ID() string { return t.id }
func (t stubTransport) Dial(context.Context, ma.Multiaddr) (net.Conn, error) {
	return nil, nil
}
func (t stubTransport) CanDial(addr ma.Multiaddr) bool {
	_, err := addr.ValueForProtocol(t.proto)
	return err == nil
}
func (t stubTransport) Listen(ma.Multiaddr) (pkgif.Listener, error) { return nil, nil }
func (t stubTransport) Protocols() []int                             { return []int{t.proto} }
func (t stubTransport) Close() error                                 { return nil }

func muxerDesc(id string) Descriptor {
	return Descriptor{ID: id, Impl: stubMuxer{id: id}}
}

// ============================================================================
//                              Register
// ============================================================================

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(types.KindMuxer, muxerDesc("/yamux/1.0.0")))
	require.NoError(t, r.Register(types.KindMuxer, muxerDesc("/mplex/6.7.0")))

	assert.Equal(t, []string{"/yamux/1.0.0", "/mplex/6.7.0"}, r.IDs(types.KindMuxer))
	assert.Len(t, r.Muxers(), 2)
	assert.Empty(t, r.IDs(types.KindSecurity))
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(types.KindMuxer, muxerDesc("/yamux/1.0.0")))

	err := r.Register(types.KindMuxer, muxerDesc("/yamux/1.0.0"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDuplicateCapability)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestRegistry_RegisterKindMismatch(t *testing.T) {
	r := NewRegistry()
	err := r.Register(types.KindSecurity, muxerDesc("/yamux/1.0.0"))
	assert.ErrorIs(t, err, ErrKindMismatch)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	err = r.Register(types.KindMuxer, Descriptor{Impl: stubMuxer{}})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestRegistry_Sealed(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	assert.True(t, r.Sealed())

	err := r.Register(types.KindMuxer, muxerDesc("/yamux/1.0.0"))
	assert.ErrorIs(t, err, ErrSealed)
}

// ============================================================================
//                              Resolve / Negotiate
// ============================================================================

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(types.KindMuxer, muxerDesc("a")))
	require.NoError(t, r.Register(types.KindMuxer, muxerDesc("b")))
	require.NoError(t, r.Register(types.KindMuxer, muxerDesc("c")))

	tests := []struct {
		name    string
		offered []string
		want    string
		wantErr bool
	}{
		{"local preference wins", []string{"c", "b"}, "b", false},
		{"single match", []string{"x", "c"}, "c", false},
		{"first local", []string{"c", "b", "a"}, "a", false},
		{"no overlap", []string{"x", "y"}, "", true},
		{"empty offer", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(types.KindMuxer, tt.offered)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrNoCommonCapability)
				assert.ErrorIs(t, err, types.ErrNegotiation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNegotiate_BothSidesConverge(t *testing.T) {
	initiator := []string{"/noise", "/tls/1.0.0", "/plaintext"}
	responder := []string{"/tls/1.0.0", "/noise"}

	// 发起方：本地偏好 × 对端列表
	a, ok := Negotiate(initiator, responder)
	require.True(t, ok)
	// 响应方：发起方偏好 × 本地列表
	b, ok := Negotiate(initiator, responder)
	require.True(t, ok)

	assert.Equal(t, "/noise", a)
	assert.Equal(t, a, b)

	// 多次调用结果不变
	for i := 0; i < 10; i++ {
		got, _ := Negotiate(initiator, responder)
		assert.Equal(t, a, got)
	}
}

func TestRegistry_TransportFor(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(types.KindTransport, Descriptor{ID: "tcp", Impl: stubTransport{id: "tcp", proto: ma.P_TCP}}))
	require.NoError(t, r.Register(types.KindTransport, Descriptor{ID: "udp", Impl: stubTransport{id: "udp", proto: ma.P_UDP}}))

	tpt, ok := r.TransportFor(ma.StringCast("/ip4/127.0.0.1/udp/1234"))
	require.True(t, ok)
	assert.Equal(t, "udp", tpt.ID())

	_, ok = r.TransportFor(ma.StringCast("/ip4/127.0.0.1"))
	assert.False(t, ok)
}

// ============================================================================
//                              fx 模块
// ============================================================================

func TestModule_OrdersByPriority(t *testing.T) {
	var r *Registry
	app := fxtest.New(t,
		Module(),
		fx.Provide(
			AsEntry(func() Entry { return Entry{Kind: types.KindMuxer, Priority: 1, Descriptor: muxerDesc("second")} }),
			AsEntry(func() Entry { return Entry{Kind: types.KindMuxer, Priority: 0, Descriptor: muxerDesc("first")} }),
		),
		fx.Populate(&r),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, []string{"first", "second"}, r.IDs(types.KindMuxer))
}

func TestModule_DuplicateFailsStartup(t *testing.T) {
	app := fx.New(
		fx.NopLogger,
		Module(),
		fx.Provide(
			AsEntry(func() Entry { return Entry{Kind: types.KindMuxer, Descriptor: muxerDesc("dup")} }),
			AsEntry(func() Entry { return Entry{Kind: types.KindMuxer, Priority: 1, Descriptor: muxerDesc("dup")} }),
		),
		fx.Invoke(func(*Registry) {}),
	)
	err := app.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDuplicateCapability)
}
