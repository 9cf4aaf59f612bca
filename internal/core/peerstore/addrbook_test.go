package peerstore

import (
	"fmt"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/storage"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func addr(port int) ma.Multiaddr {
	return ma.StringCast(fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", port))
}

// fakeClock 单调递增的时间源
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newBook(t *testing.T, retain int, opts ...Option) *AddrBook {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b, err := New(retain, append([]Option{WithClock(clk.now)}, opts...)...)
	require.NoError(t, err)
	return b
}

func TestAddrBook_AddAddrsMerges(t *testing.T) {
	b := newBook(t, 10)
	id := types.TestPeerID("a")

	b.AddAddrs(id, []ma.Multiaddr{addr(1)}, "mdns")
	b.AddAddrs(id, []ma.Multiaddr{addr(1), addr(2)}, "bootstrap")
	b.AddAddrs(id, nil, "mdns")

	rec, ok := b.Record(id)
	require.True(t, ok)
	assert.Len(t, rec.Addrs, 2)
	assert.Equal(t, []string{"mdns", "bootstrap"}, rec.Sources)
	assert.False(t, rec.LastSeen.IsZero())
	assert.Equal(t, 1, b.Len())

	// 空身份忽略
	b.AddAddrs(types.EmptyPeerID, []ma.Multiaddr{addr(3)}, "mdns")
	assert.Equal(t, 1, b.Len())
}

func TestAddrBook_RecordIsCopy(t *testing.T) {
	b := newBook(t, 10)
	id := types.TestPeerID("a")
	b.AddAddrs(id, []ma.Multiaddr{addr(1)}, "x")

	rec, _ := b.Record(id)
	rec.Addrs[0] = addr(9)
	rec.Health = 50

	assert.True(t, b.Addrs(id)[0].Equal(addr(1)))
	assert.Equal(t, 0, b.Health(id))
}

func TestAddrBook_HealthClamped(t *testing.T) {
	b := newBook(t, 10)
	id := types.TestPeerID("a")

	b.RecordSuccess(id)
	assert.Equal(t, SuccessDelta, b.Health(id))
	b.RecordFailure(id)
	assert.Equal(t, SuccessDelta+FailureDelta, b.Health(id))

	assert.Equal(t, MaxHealth, b.AdjustHealth(id, 1000))
	assert.Equal(t, MinHealth, b.AdjustHealth(id, -5000))
	assert.Equal(t, 0, b.Health(types.TestPeerID("unknown")))
}

func TestAddrBook_RetainsBoundedDisconnected(t *testing.T) {
	b := newBook(t, 2)
	connected := types.TestPeerID("connected")
	b.AddAddrs(connected, []ma.Multiaddr{addr(1)}, "x")
	b.MarkConnected(connected, "s1")

	for i := 0; i < 5; i++ {
		b.AddAddrs(types.TestPeerID(fmt.Sprint(i)), []ma.Multiaddr{addr(10 + i)}, "x")
	}

	// 已连接节点不受保留上限影响
	rec, ok := b.Record(connected)
	require.True(t, ok)
	assert.True(t, rec.Connected)
	assert.Equal(t, "s1", rec.SessionID)

	// 只保留最近的两个未连接记录
	assert.Equal(t, 3, b.Len())
	_, ok = b.Record(types.TestPeerID("0"))
	assert.False(t, ok)
	_, ok = b.Record(types.TestPeerID("4"))
	assert.True(t, ok)

	// 断开后进入保留队列并挤出最旧的记录
	b.MarkDisconnected(connected)
	rec, ok = b.Record(connected)
	require.True(t, ok)
	assert.False(t, rec.Connected)
	assert.Empty(t, rec.SessionID)
	assert.Equal(t, 2, b.Len())
}

func TestAddrBook_DialingRecordNotEvicted(t *testing.T) {
	b := newBook(t, 2)
	dialing := types.TestPeerID("dialing")
	b.AddAddrs(dialing, []ma.Multiaddr{addr(1)}, "x")
	b.AdjustHealth(dialing, 40)
	b.MarkDialing(dialing)

	for i := 0; i < 5; i++ {
		b.AddAddrs(types.TestPeerID(fmt.Sprint(i)), []ma.Multiaddr{addr(10 + i)}, "x")
	}
	b.RecordFailure(dialing)

	rec, ok := b.Record(dialing)
	require.True(t, ok)
	assert.Equal(t, []ma.Multiaddr{addr(1)}, rec.Addrs)
	assert.Equal(t, 40+FailureDelta, rec.Health)
	assert.Equal(t, 3, b.Len())

	// 拨号结束后重新受保留上限约束
	b.MarkDisconnected(dialing)
	assert.Equal(t, 2, b.Len())
	_, ok = b.Record(dialing)
	assert.True(t, ok, "最近断开的记录最后淘汰")
}

func TestAddrBook_Candidates(t *testing.T) {
	b := newBook(t, 10)
	low := types.TestPeerID("low")
	high := types.TestPeerID("high")
	conn := types.TestPeerID("conn")
	noAddr := types.TestPeerID("noaddr")
	skipped := types.TestPeerID("skipped")

	for i, id := range []types.PeerID{low, high, conn, skipped} {
		b.AddAddrs(id, []ma.Multiaddr{addr(i + 1)}, "x")
	}
	b.AdjustHealth(noAddr, 10)
	b.AdjustHealth(high, 5)
	b.AdjustHealth(low, -5)
	b.MarkConnected(conn, "s")

	got := b.Candidates(0, func(id types.PeerID) bool { return id == skipped })
	require.Len(t, got, 2)
	assert.Equal(t, high, got[0].ID)
	assert.Equal(t, low, got[1].ID)

	got = b.Candidates(1, nil)
	require.Len(t, got, 1)
	assert.Equal(t, high, got[0].ID)
}

func TestAddrBook_Persistence(t *testing.T) {
	engine, err := storage.Open(storage.Config{InMemory: true})
	require.NoError(t, err)
	defer engine.Close()
	store := storage.NewStore(engine, recordPrefix)

	id := types.TestPeerID("persisted")
	b := newBook(t, 10, WithStore(store))
	b.AddAddrs(id, []ma.Multiaddr{addr(4001)}, "bootstrap")
	b.AdjustHealth(id, 7)
	b.MarkConnected(id, "s1")

	restored := newBook(t, 10, WithStore(store))
	rec, ok := restored.Record(id)
	require.True(t, ok)
	assert.Equal(t, 7, rec.Health)
	assert.False(t, rec.Connected, "恢复的记录视为未连接")
	require.Len(t, rec.Addrs, 1)
	assert.True(t, rec.Addrs[0].Equal(addr(4001)))
	assert.Equal(t, []string{"bootstrap"}, rec.Sources)
}

func TestAddrBook_EvictionRemovesFromStore(t *testing.T) {
	engine, err := storage.Open(storage.Config{InMemory: true})
	require.NoError(t, err)
	defer engine.Close()
	store := storage.NewStore(engine, recordPrefix)

	b := newBook(t, 1, WithStore(store))
	first := types.TestPeerID("first")
	b.AddAddrs(first, []ma.Multiaddr{addr(1)}, "x")
	b.AddAddrs(types.TestPeerID("second"), []ma.Multiaddr{addr(2)}, "x")

	_, err = store.Get([]byte(first))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestModule_ProvidesAddrBook(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Peerstore.Path = t.TempDir()

	var book pkgif.AddrBook
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&book),
	)
	app.RequireStart()
	book.AddAddrs(types.TestPeerID("a"), []ma.Multiaddr{addr(1)}, "x")
	assert.Len(t, book.Peers(), 1)
	app.RequireStop()
}
