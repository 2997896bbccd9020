package internal

import "sync"

// Feed fans out snapshots of a store to subscribers. Each subscriber
// channel holds at most one pending value; a newer publish replaces an
// unread older one, so a slow reader always sees the latest state and a
// publisher never blocks.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
}

// NewFeed creates an empty feed
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber and delivers initial as its first
// value. The returned cancel func closes the channel.
func (f *Feed[T]) Subscribe(initial T) (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, 1)
	ch <- initial
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// drop the stale value, then retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
