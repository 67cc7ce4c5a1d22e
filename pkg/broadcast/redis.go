package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster delivers messages across processes through Redis pub/sub.
// Payloads are JSON encoded. Slow consumers lose messages but stay subscribed.
type RedisBroadcaster[T any] struct {
	client     redis.UniversalClient
	prefix     string
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[*redisSubscriber[T]]struct{}
	closed bool
	wg     sync.WaitGroup
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// WithChannelPrefix sets the prefix prepended to every topic. Default "broadcast:".
func WithChannelPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// WithBufferSize sets the per-subscriber buffer. Default 16.
func WithBufferSize(n int) RedisOption {
	return func(o *redisOptions) { o.bufferSize = max(n, 1) }
}

// WithLogger sets the logger for decode and subscribe failures.
func WithLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewRedisBroadcaster creates a broadcaster on top of an existing client.
func NewRedisBroadcaster[T any](client redis.UniversalClient, opts ...RedisOption) *RedisBroadcaster[T] {
	if client == nil {
		panic("broadcast: redis client is required")
	}
	o := redisOptions{
		prefix:     "broadcast:",
		bufferSize: 16,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisBroadcaster[T]{
		client:     client,
		prefix:     o.prefix,
		bufferSize: o.bufferSize,
		logger:     o.logger,
		subs:       make(map[*redisSubscriber[T]]struct{}),
	}
}

type redisSubscriber[T any] struct {
	*subscriber[T]
	ps *redis.PubSub
}

// Subscribe blocks until Redis confirms the subscription so that messages
// published after it returns are delivered. On failure the returned
// subscriber is already closed.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context, topic string) Subscriber[T] {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed || topic == "" {
		return closedSubscriber[T](topic)
	}

	ps := b.client.Subscribe(ctx, b.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.ErrorContext(ctx, "subscribe failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
		_ = ps.Close()
		return closedSubscriber[T](topic)
	}

	sub := &redisSubscriber[T]{
		subscriber: newSubscriber[T](topic, b.bufferSize),
		ps:         ps,
	}
	done := make(chan struct{})
	sub.onClose = func() {
		close(done)
		_ = ps.Close()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.pump(ctx, sub, done)
	}()

	return sub
}

func (b *RedisBroadcaster[T]) pump(ctx context.Context, sub *redisSubscriber[T], done <-chan struct{}) {
	in := sub.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case <-done:
			return
		case m, ok := <-in:
			if !ok {
				_ = sub.Close()
				return
			}
			var data T
			if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
				b.logger.Warn("dropping undecodable message",
					slog.String("topic", sub.topic),
					slog.String("error", err.Error()))
				continue
			}
			if !sub.send(Message[T]{Topic: sub.topic, Data: data}) {
				b.logger.Debug("subscriber buffer full, message dropped",
					slog.String("topic", sub.topic))
			}
		}
	}
}

// Broadcast publishes data to topic.
func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, topic string, data T) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

// Close closes every subscriber. The client itself is left open.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscriber[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.wg.Wait()
	return nil
}
