package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

type testEvent struct{ Value int }

func TestBus_SubscribeRejectsNonPointer(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(testEvent{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	_, err = bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = bus.Emitter(testEvent{})
	assert.ErrorIs(t, err, ErrNonPointerType)
}

func TestBus_EmitDelivers(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(testEvent{Value: 42}))

	select {
	case evt := <-sub.Out():
		assert.Equal(t, 42, evt.(testEvent).Value)
	case <-time.After(time.Second):
		t.Fatal("未收到事件")
	}
}

func TestBus_RoutesByType(t *testing.T) {
	bus := NewBus()

	connected, err := bus.Subscribe(new(types.EvtPeerConnected))
	require.NoError(t, err)
	stopped, err := bus.Subscribe(new(types.EvtNodeStopped))
	require.NoError(t, err)

	em, err := bus.Emitter(new(types.EvtPeerConnected))
	require.NoError(t, err)
	require.NoError(t, em.Emit(types.EvtPeerConnected{Peer: types.TestPeerID("a")}))

	assert.Len(t, connected.Out(), 1)
	assert.Len(t, stopped.Out(), 0)

	// 类型不匹配的事件被拒绝
	err = em.Emit(types.EvtNodeStopped{})
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()

	slow, err := bus.Subscribe(new(testEvent), pkgif.BufSize(1))
	require.NoError(t, err)
	fast, err := bus.Subscribe(new(testEvent), pkgif.BufSize(10))
	require.NoError(t, err)

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = em.Emit(testEvent{Value: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("发射被慢订阅者阻塞")
	}

	assert.Equal(t, int64(4), slow.Dropped())
	assert.Equal(t, int64(0), fast.Dropped())
	assert.Len(t, fast.Out(), 5)
}

func TestBus_StatefulReplaysLast(t *testing.T) {
	bus := NewBus()

	em, err := bus.Emitter(new(testEvent), pkgif.Stateful())
	require.NoError(t, err)
	require.NoError(t, em.Emit(testEvent{Value: 1}))
	require.NoError(t, em.Emit(testEvent{Value: 2}))

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	evt := <-sub.Out()
	assert.Equal(t, 2, evt.(testEvent).Value)
}

func TestSubscription_CloseClosesChannel(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Out()
	assert.False(t, ok)
}

func TestEmitter_Closed(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	require.NoError(t, em.Close())

	assert.ErrorIs(t, em.Emit(testEvent{}), ErrEmitterClosed)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-sub.Out()
	assert.False(t, ok)

	_, err = bus.Subscribe(new(testEvent))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = bus.Emitter(new(testEvent))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBus_ConcurrentEmitAndClose(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = em.Emit(testEvent{Value: j})
			}
		}()
		go func() {
			defer wg.Done()
			sub, err := bus.Subscribe(new(testEvent), pkgif.BufSize(4))
			if err != nil {
				return
			}
			_ = sub.Close()
		}()
	}
	wg.Wait()
}

func TestModule_ClosesOnStop(t *testing.T) {
	var bus pkgif.EventBus
	app := fxtest.New(t, Module(), fx.Populate(&bus))
	app.RequireStart()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	app.RequireStop()

	_, ok := <-sub.Out()
	assert.False(t, ok)
}
