package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster delivers messages within the process. Slow consumers are
// dropped rather than blocking the broadcast; their channel gets closed.
// All methods are safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	topics     map[string]map[*subscriber[T]]struct{}
	bufferSize int
	closed     bool
	mu         sync.RWMutex
	cleanupWg  sync.WaitGroup // tracks cleanup goroutines
}

// NewMemoryBroadcaster creates an in-memory broadcaster. Each subscriber gets
// a buffer of bufferSize messages, at least 1.
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		topics:     make(map[string]map[*subscriber[T]]struct{}),
		bufferSize: max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber for topic. If the broadcaster is closed the
// returned subscriber is already closed.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context, topic string) Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || topic == "" {
		return closedSubscriber[T](topic)
	}

	sub := newSubscriber[T](topic, b.bufferSize)
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*subscriber[T]]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}

	done := make(chan struct{})
	sub.onClose = func() {
		close(done)
		b.remove(sub)
	}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-done:
			}
		}()
	}

	return sub
}

// Broadcast sends data to the subscribers of topic without blocking.
// Subscribers with a full buffer miss the message and are removed.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, topic string, data T) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message[T]{Topic: topic, Data: data}
	for sub := range b.topics[topic] {
		if !sub.send(msg) {
			b.cleanupWg.Add(1)
			go func() {
				defer b.cleanupWg.Done()
				_ = sub.Close()
			}()
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers of topic.
func (b *MemoryBroadcaster[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close closes every subscriber. Safe to call multiple times.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscriber[T]
	for _, set := range b.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	clear(b.topics)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}

	// Wait for cleanup goroutines started by Subscribe and Broadcast.
	b.cleanupWg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}
