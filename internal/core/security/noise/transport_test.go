package noise

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/ed25519"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nodehost/internal/core/identity"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func newTransport(t *testing.T) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	tpt, err := New(id)
	require.NoError(t, err)
	return tpt, id
}

type result struct {
	conn pkgif.SecureConn
	err  error
}

func handshakePair(t *testing.T, client, server *Transport, expected types.PeerID) (result, result) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := make(chan result, 1)
	go func() {
		c, err := server.SecureInbound(ctx, b, "")
		if err != nil {
			// 让对端尽快失败
			_ = b.Close()
		}
		srv <- result{c, err}
	}()
	c, err := client.SecureOutbound(ctx, a, expected)
	if err != nil {
		_ = a.Close()
	}
	return result{c, err}, <-srv
}

func TestHandshake_AuthenticatesBothSides(t *testing.T) {
	client, clientID := newTransport(t)
	server, serverID := newTransport(t)

	cr, sr := handshakePair(t, client, server, serverID.PeerID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, serverID.PeerID(), cr.conn.RemotePeer())
	assert.Equal(t, clientID.PeerID(), sr.conn.RemotePeer())
	assert.Equal(t, clientID.PeerID(), cr.conn.LocalPeer())
	assert.Equal(t, serverID.PublicKey(), cr.conn.RemotePublicKey())
}

func TestHandshake_PeerIdentityMismatch(t *testing.T) {
	client, _ := newTransport(t)
	server, _ := newTransport(t)

	cr, _ := handshakePair(t, client, server, types.TestPeerID("someone-else"))
	require.Error(t, cr.err)
	assert.ErrorIs(t, cr.err, types.ErrPeerIdentityMismatch)
	assert.ErrorIs(t, cr.err, types.ErrNegotiation)
}

func TestHandshake_GarbageFails(t *testing.T) {
	server, _ := newTransport(t)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte{0x00, 0x04, 'j', 'u', 'n', 'k'})
		_ = a.Close()
	}()

	_, err := server.SecureInbound(context.Background(), b, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEncryptionHandshakeFailed)
}

func TestHandshake_ContextCancel(t *testing.T) {
	server, _ := newTransport(t)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := server.SecureInbound(ctx, b, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUpgradeTimeout)
}

func TestSecureConn_LargeWrites(t *testing.T) {
	client, _ := newTransport(t)
	server, serverID := newTransport(t)
	cr, sr := handshakePair(t, client, server, serverID.PeerID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 100_000)
	go func() {
		_, _ = cr.conn.Write(payload)
	}()

	got := make([]byte, len(payload))
	_, err := io.ReadFull(sr.conn, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestKeyConversion_DHAgrees(t *testing.T) {
	a, err := identity.Generate()
	require.NoError(t, err)
	b, err := identity.Generate()
	require.NoError(t, err)

	x := ecdh.X25519()
	privA, err := x.NewPrivateKey(ed25519ToCurve25519Private(a.PrivateKey().(ed25519.PrivateKey)))
	require.NoError(t, err)
	privB, err := x.NewPrivateKey(ed25519ToCurve25519Private(b.PrivateKey().(ed25519.PrivateKey)))
	require.NoError(t, err)
	pubA, err := x.NewPublicKey(ed25519ToCurve25519Public(a.PublicKey()))
	require.NoError(t, err)
	pubB, err := x.NewPublicKey(ed25519ToCurve25519Public(b.PublicKey()))
	require.NoError(t, err)

	// 转换后的公钥与由转换后私钥计算的公钥一致
	assert.Equal(t, privA.PublicKey().Bytes(), pubA.Bytes())

	s1, err := privA.ECDH(pubB)
	require.NoError(t, err)
	s2, err := privB.ECDH(pubA)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestPayload_RoundTrip(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	static := ed25519ToCurve25519Public(id.PublicKey())
	sig, err := id.Sign(append([]byte(payloadSigPrefix), static...))
	require.NoError(t, err)

	key, peer, err := verifyPayload(encodePayload(id.PublicKey(), sig), static)
	require.NoError(t, err)
	assert.Equal(t, id.PeerID(), peer)
	assert.Equal(t, []byte(id.PublicKey()), []byte(key))

	// 篡改静态公钥后签名失效
	other := append([]byte(nil), static...)
	other[0] ^= 0xFF
	_, _, err = verifyPayload(encodePayload(id.PublicKey(), sig), other)
	assert.Error(t, err)
}
