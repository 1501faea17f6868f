package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalNotifier_PublishReachesAllSubscribers(t *testing.T) {
	n := NewLocalNotifier()
	ctx := context.Background()

	ch1, cancel1 := n.Subscribe(ctx)
	defer cancel1()
	ch2, cancel2 := n.Subscribe(ctx)
	defer cancel2()

	ev := Event{Table: TableQueues, Action: "create", At: time.Now()}
	require.NoError(t, n.Publish(ctx, ev))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, TableQueues, got.Table)
			assert.Equal(t, "create", got.Action)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestLocalNotifier_CancelStopsDelivery(t *testing.T) {
	n := NewLocalNotifier()
	ctx := context.Background()

	ch, cancel := n.Subscribe(ctx)
	cancel()

	// The channel is closed on cancel, and publishing afterwards is safe.
	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, n.Publish(ctx, Event{Table: TableMembers, Action: "update"}))
}

func TestLocalNotifier_CancelTwiceIsSafe(t *testing.T) {
	n := NewLocalNotifier()

	_, cancel := n.Subscribe(context.Background())
	cancel()
	cancel()
}

func TestLocalNotifier_SlowSubscriberCoalesces(t *testing.T) {
	n := NewLocalNotifier()
	ctx := context.Background()

	ch, cancel := n.Subscribe(ctx)
	defer cancel()

	// Overflow the buffer; extra events are dropped, never blocked on.
	for i := 0; i < 100; i++ {
		require.NoError(t, n.Publish(ctx, Event{Table: TableMembers, Action: "update"}))
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Greater(t, received, 0)
			assert.LessOrEqual(t, received, 16)
			return
		}
	}
}
