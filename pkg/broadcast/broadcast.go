package broadcast

import (
	"context"
	"sync"
)

// Message is a payload delivered on a topic.
type Message[T any] struct {
	Topic string `json:"topic"`
	Data  T      `json:"data"`
}

// Subscriber receives the messages of one topic.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the subscriber
	// is closed, dropped as a slow consumer, or the broadcaster shuts down.
	Receive(ctx context.Context) <-chan Message[T]

	Close() error
}

// Broadcaster fans messages out to the subscribers of a topic.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for topic. The subscription ends when
	// ctx is cancelled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string) Subscriber[T]

	// Broadcast delivers data to every current subscriber of topic.
	Broadcast(ctx context.Context, topic string, data T) error

	Close() error
}

type subscriber[T any] struct {
	topic   string
	ch      chan Message[T]
	closed  bool
	onClose func()
	mu      sync.RWMutex
}

func newSubscriber[T any](topic string, bufferSize int) *subscriber[T] {
	return &subscriber[T]{
		topic: topic,
		ch:    make(chan Message[T], bufferSize),
	}
}

func closedSubscriber[T any](topic string) *subscriber[T] {
	sub := newSubscriber[T](topic, 1)
	_ = sub.Close()
	return sub
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	close(s.ch)
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// send never blocks; a full buffer drops the message.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
