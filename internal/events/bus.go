package events

import (
	"context"
	"sync"
)

// DefaultCapacity is the bounded queue size.
const DefaultCapacity = 256

// Bus is a bounded event queue between the driver loop (producer side) and a
// single consumer feeding the external transport. Publish never blocks: on
// overflow the oldest event is dropped and replaced with a synthetic
// events_dropped marker, so loss is always visible in the stream.
type Bus struct {
	mu       sync.Mutex
	buf      []Event
	capacity int
	signal   chan struct{}
}

// NewBus creates a bus with the default capacity.
func NewBus() *Bus {
	return NewBusWithCapacity(DefaultCapacity)
}

// NewBusWithCapacity creates a bus with a custom capacity (tests).
func NewBusWithCapacity(capacity int) *Bus {
	if capacity < 2 {
		capacity = 2
	}
	return &Bus{
		buf:      make([]Event, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Publish enqueues an event, dropping the oldest on overflow. The dropped
// slot becomes a synthetic marker; repeated overflow coalesces into one
// marker with a running count.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if len(b.buf) >= b.capacity {
		dropped := 0
		if b.buf[0].Type == TypeEventsDropped {
			if n, ok := b.buf[0].Data["dropped"].(int); ok {
				dropped = n
			}
			b.buf = b.buf[1:]
		}
		// Make room for the marker plus the new event.
		for len(b.buf) > b.capacity-2 {
			b.buf = b.buf[1:]
			dropped++
		}
		marker := New(TypeEventsDropped, SeverityWarning,
			"event queue overflow, oldest events dropped",
			map[string]interface{}{"dropped": dropped}, "")
		b.buf = append([]Event{marker}, b.buf...)
	}
	b.buf = append(b.buf, e)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Poll dequeues the oldest event without blocking.
func (b *Bus) Poll() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return Event{}, false
	}
	e := b.buf[0]
	b.buf = b.buf[1:]
	return e, true
}

// Next blocks until an event is available or ctx is done.
func (b *Bus) Next(ctx context.Context) (Event, error) {
	for {
		if e, ok := b.Poll(); ok {
			return e, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-b.signal:
		}
	}
}

// Len returns the number of queued events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
