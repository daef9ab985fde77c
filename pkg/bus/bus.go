package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus queues outbound messages in submission order and fans out bridge
// events to subscribers.
type MessageBus struct {
	outbound chan Outbound

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

// NewMessageBusSize creates a bus whose outbound queue holds size messages.
func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		outbound:         make(chan Outbound, size),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// OfferOutbound enqueues msg only if the queue has room. It never blocks.
func (mb *MessageBus) OfferOutbound(msg Outbound) bool {
	select {
	case <-mb.done:
		return false
	default:
	}

	select {
	case mb.outbound <- msg:
		return true
	default:
		return false
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (Outbound, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return Outbound{}, false
	case <-mb.done:
		return Outbound{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

// Pending reports how many outbound messages wait for dispatch.
func (mb *MessageBus) Pending() int {
	return len(mb.outbound)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
