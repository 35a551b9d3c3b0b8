package events

import "sync"

// Broker fans events out to subscribers. A subscription keyed by a match id
// sees that match's events; the empty key sees every event.
type Broker struct {
	mu     sync.RWMutex
	buffer int
	next   int
	subs   map[string]map[int]chan Event
}

func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{buffer: buffer, subs: make(map[string]map[int]chan Event)}
}

// Subscribe returns a channel of events for key and a func that ends the
// subscription and closes the channel.
func (b *Broker) Subscribe(key string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan Event)
	}
	b.subs[key][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	deliver := func(subs map[int]chan Event) {
		for _, ch := range subs {
			select {
			case ch <- e:
			default:
			}
		}
	}
	if e.MatchID != "" {
		deliver(b.subs[e.MatchID])
	}
	deliver(b.subs[""])
}

// Subscribers counts live subscriptions for key.
func (b *Broker) Subscribers(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}
