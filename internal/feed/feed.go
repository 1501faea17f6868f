package feed

import (
	"context"
	"sync"
	"time"
)

// Event notifies subscribers that rows in a table changed. Delivery is
// at-least-once and the payload is advisory: subscribers must re-fetch
// rather than trust it as a delta.
type Event struct {
	Table  string    `json:"table"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

const (
	TableQueues  = "queues"
	TableMembers = "queue_members"
)

// Notifier is the change feed contract. Publish never blocks on slow
// subscribers; Subscribe returns a receive channel and a cancel func that
// must be called when the consumer goes away.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (<-chan Event, func())
}

// LocalNotifier is an in-process implementation used in tests and when no
// Redis is configured. A subscriber whose buffer is full has the event
// coalesced (dropped), which is safe because consumers re-fetch the full
// state on every notification.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: map[int]chan Event{}}
}

func (n *LocalNotifier) Publish(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Event, 16)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
