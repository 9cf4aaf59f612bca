package metrics

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDial(nil)
	m.ObserveUpgrade(types.DirInbound, time.Now(), nil)
	m.ObserveDisconnect(types.ReasonPruned)
	m.SetPeers(nil)
	assert.Nil(t, m.Registry())

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	assert.Equal(t, a, m.WrapConn(a))
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveDial(nil)
	m.ObserveDial(errors.New("refused"))
	m.ObserveDial(errors.New("refused"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dials.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dials.WithLabelValues(ResultFailure)))

	m.ObserveDisconnect(types.ReasonPruned)
	m.ObserveDisconnect(types.ReasonRemoteClosed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.prunes))

	m.SetPeers(map[types.PeerState]int{types.StateConnected: 3})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.peers.WithLabelValues(types.StateConnected.String())))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.peers.WithLabelValues(types.StateDialing.String())))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_WrapConnCountsBytes(t *testing.T) {
	m := New()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	wrapped := m.WrapConn(a)
	go func() {
		buf := make([]byte, 5)
		_, _ = b.Read(buf)
		_, _ = b.Write([]byte("abc"))
	}()

	_, err := wrapped.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = wrapped.Read(buf)
	require.NoError(t, err)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytes.WithLabelValues("out")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.bytes.WithLabelValues("in")))
}
