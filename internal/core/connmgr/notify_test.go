package connmgr

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// sequence 按到达顺序记录每个节点的通知
type sequence struct {
	mu     sync.Mutex
	events map[types.PeerID][]string
}

func (s *sequence) add(peer types.PeerID, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = make(map[types.PeerID][]string)
	}
	s.events[peer] = append(s.events[peer], kind)
}

func (s *sequence) of(peer types.PeerID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events[peer]...)
}

func TestNotify_DisconnectedNeverBeforeConnected(t *testing.T) {
	h := newHarness(t, testConfig(0, 100))

	// 拨号返回的会话已经关闭，watch 会立即触发断开
	h.dialer.DialF = func(_ context.Context, info types.PeerInfo) (pkgif.Session, error) {
		s := newFakeSession(info.ID)
		_ = s.Close()
		return s, nil
	}

	seq := &sequence{}
	h.m.Notify(&NotifyBundle{
		ConnectedF: func(pkgif.Session) { time.Sleep(time.Millisecond) },
	})
	h.m.Notify(&NotifyBundle{
		ConnectedF:    func(sess pkgif.Session) { seq.add(sess.RemotePeer(), "C") },
		DisconnectedF: func(peer types.PeerID, _ types.DisconnectReason) { seq.add(peer, "D") },
	})

	const n = 30
	peers := make([]types.PeerInfo, n)
	for i := range peers {
		peers[i] = h.candidate(fmt.Sprintf("closing-%02d", i), 0)
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p types.PeerInfo) {
			defer wg.Done()
			_ = h.m.Admit(context.Background(), p)
		}(p)
	}
	wg.Wait()

	for _, p := range peers {
		require.Eventually(t, func() bool { return len(seq.of(p.ID)) == 2 }, waitFor, tick)
		assert.Equal(t, []string{"C", "D"}, seq.of(p.ID), "peer %s", p.ID.ShortString())
	}
}

func TestNotify_CallbackMayReenterManager(t *testing.T) {
	h := newHarness(t, testConfig(0, 10))
	other := newFakeSession(types.TestPeerID("other"))

	var once sync.Once
	h.m.Notify(&NotifyBundle{
		ConnectedF: func(pkgif.Session) {
			// 回调中登记新会话，通知由当前投递者继续投递
			once.Do(func() { _ = h.m.AdmitInbound(other) })
		},
	})

	require.NoError(t, h.m.AdmitInbound(newFakeSession(types.TestPeerID("first"))))
	assert.Equal(t, 2, h.m.ConnectedCount())
	require.Eventually(t, func() bool {
		h.events.mu.Lock()
		defer h.events.mu.Unlock()
		return len(h.events.connected) == 2
	}, waitFor, tick)
}
