package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestNew_MergesAndValidates(t *testing.T) {
	a := types.TestPeerID("a")
	d, err := New(config.BootstrapConfig{
		Enabled:  true,
		Interval: config.Duration(time.Minute),
		Peers: []string{
			"/ip4/10.0.0.1/tcp/4001/p2p/" + a.String(),
			"/ip4/10.0.0.1/udp/4001/quic-v1/p2p/" + a.String(),
			"/ip4/10.0.0.9/tcp/4001",
		},
	})
	require.NoError(t, err)
	require.Len(t, d.peers, 2)
	assert.Len(t, d.peers[0].Addrs, 2)
	assert.False(t, d.peers[1].HasIdentity())

	_, err = New(config.BootstrapConfig{Peers: []string{"not-an-addr"}})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestDiscover_RepeatsEveryInterval(t *testing.T) {
	clk := clock.NewMock()
	peers := []types.PeerInfo{
		{ID: types.TestPeerID("a")},
		{ID: types.TestPeerID("b")},
	}
	d := NewWithPeers(peers, time.Minute, WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := d.Discover(ctx)
	require.NoError(t, err)

	recv := func() types.PeerID {
		select {
		case info := <-out:
			return info.ID
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for bootstrap peer")
			return ""
		}
	}

	first := []types.PeerID{recv(), recv()}
	assert.ElementsMatch(t, []types.PeerID{peers[0].ID, peers[1].ID}, first)

	clk.Add(time.Minute)
	second := []types.PeerID{recv(), recv()}
	assert.ElementsMatch(t, first, second)

	cancel()
	for range out {
	}
}

func TestDiscover_NoPeersClosesImmediately(t *testing.T) {
	d := NewWithPeers(nil, time.Minute)
	out, err := d.Discover(context.Background())
	require.NoError(t, err)
	_, ok := <-out
	assert.False(t, ok)
	assert.Equal(t, Name, d.Name())
}
