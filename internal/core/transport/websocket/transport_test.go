package websocket

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_CanDial(t *testing.T) {
	tpt := New(time.Second)

	assert.True(t, tpt.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/ws")))
	assert.False(t, tpt.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.False(t, tpt.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/4001/quic-v1")))
}

func TestTransport_RoundTrip(t *testing.T) {
	tpt := New(5 * time.Second)
	defer tpt.Close()

	l, err := tpt.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0/ws"))
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Multiaddr().ValueForProtocol(ma.P_WS)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("nodehost"), 4096)
	echoed := make(chan error, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			echoed <- err
			return
		}
		defer c.Close()
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(c, buf); err != nil {
			echoed <- err
			return
		}
		_, err = c.Write(buf)
		echoed <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tpt.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)
	defer c.Close()

	// 分多次写入，读端需要跨消息拼接
	half := len(payload) / 2
	_, err = c.Write(payload[:half])
	require.NoError(t, err)
	_, err = c.Write(payload[half:])
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-echoed)
}

func TestListener_CloseUnblocksAccept(t *testing.T) {
	tpt := New(time.Second)
	defer tpt.Close()

	l, err := tpt.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0/ws"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		done <- err
	}()

	require.NoError(t, l.Close())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept 未返回")
	}
}
