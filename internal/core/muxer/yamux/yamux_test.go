package yamux

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

func newPair(t *testing.T) (client, server pkgif.MuxedConn) {
	t.Helper()
	a, b := net.Pipe()
	tr := New()

	var err error
	client, err = tr.NewConn(a, false)
	require.NoError(t, err)
	server, err = tr.NewConn(b, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestMuxer_StreamEcho(t *testing.T) {
	client, server := newPair(t)

	done := make(chan error, 1)
	go func() {
		s, err := server.AcceptStream()
		if err != nil {
			done <- err
			return
		}
		defer s.Close()
		_, err = io.Copy(s, io.LimitReader(s, 5))
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := client.OpenStream(ctx)
	require.NoError(t, err)

	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	require.NoError(t, <-done)
	require.NoError(t, s.Close())
}

func TestMuxer_CloseSignals(t *testing.T) {
	client, server := newPair(t)

	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())

	select {
	case <-server.CloseChan():
	case <-time.After(5 * time.Second):
		t.Fatal("对端未感知会话关闭")
	}

	_, err := server.AcceptStream()
	assert.Error(t, err)
}

func TestMuxer_ID(t *testing.T) {
	assert.Equal(t, ID, New().ID())
}
