package state

import (
	"sync"
	"time"
)

type EventKind string

const (
	// EventDeclared fires once per newly declared property.
	EventDeclared EventKind = "declared"
	// EventWritten fires for acknowledged writes made by the integration.
	EventWritten EventKind = "written"
	// EventRequested fires for external writes that ask for a remote change.
	EventRequested EventKind = "requested"
)

type Event struct {
	Kind     EventKind `json:"kind"`
	Property Property  `json:"property"`
	Value    any       `json:"value"`
	Time     time.Time `json:"time"`
}

type EventSubscriber interface {
	Subscribe(chan Event)
	Unsubscribe(chan Event)
}

var _ EventSubscriber = (*EventBus)(nil)

// EventBus fans events out to subscribers without blocking the publisher;
// a subscriber with a full channel misses the event.
type EventBus struct {
	channels []chan Event
	lock     sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(ch chan Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.channels = append(b.channels, ch)
}

func (b *EventBus) Unsubscribe(ch chan Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for i, c := range b.channels {
		if c == ch {
			b.channels = append(b.channels[:i], b.channels[i+1:]...)
			return
		}
	}
}

func (b *EventBus) Publish(e Event) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for _, ch := range b.channels {
		select {
		case ch <- e:
		default:
		}
	}
}
