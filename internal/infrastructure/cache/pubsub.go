package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultDashboardChannel is the Redis channel order updates fan out on
const DefaultDashboardChannel = "orderbot:dashboard"

const defaultCloseTimeout = 5 * time.Second

// ErrSubscriptionRunning is returned by a second concurrent Subscribe
var ErrSubscriptionRunning = errors.New("subscription already running")

// RedisPubSub relays opaque payloads between server instances so every
// instance's SSE clients see updates produced anywhere.
type RedisPubSub struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	isRunning bool
	doneCh    chan struct{}
	doneOnce  sync.Once
}

// PubSubOption configures RedisPubSub
type PubSubOption func(*RedisPubSub)

// WithPubSubChannel overrides the channel name
func WithPubSubChannel(channel string) PubSubOption {
	return func(p *RedisPubSub) { p.channel = channel }
}

// WithPubSubLogger sets the logger
func WithPubSubLogger(logger *zap.Logger) PubSubOption {
	return func(p *RedisPubSub) { p.logger = logger }
}

// NewRedisPubSub wraps a shared client. The caller owns the client.
func NewRedisPubSub(client redis.UniversalClient, opts ...PubSubOption) *RedisPubSub {
	p := &RedisPubSub{
		client:  client,
		channel: DefaultDashboardChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends payload to every subscriber, including this instance
func (p *RedisPubSub) Publish(ctx context.Context, payload []byte) error {
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe blocks delivering payloads to fn until ctx is cancelled or
// Close is called. fn runs on the receiving goroutine, in order.
func (p *RedisPubSub) Subscribe(ctx context.Context, fn func(payload []byte)) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return ErrSubscriptionRunning
	}
	subCtx, cancel := context.WithCancel(ctx)
	p.isRunning = true
	p.cancelFn = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.isRunning = false
		p.mu.Unlock()
		p.doneOnce.Do(func() { close(p.doneCh) })
	}()

	sub := p.client.Subscribe(subCtx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(subCtx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", p.channel, err)
	}
	p.logger.Info("Subscribed to dashboard channel", zap.String("channel", p.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return subCtx.Err()
		case msg, ok := <-msgs:
			if !ok {
				p.logger.Warn("Dashboard channel closed", zap.String("channel", p.channel))
				return nil
			}
			p.deliver(fn, []byte(msg.Payload))
		}
	}
}

func (p *RedisPubSub) deliver(fn func([]byte), payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in pubsub callback", zap.Any("panic", r))
		}
	}()
	fn(payload)
}

// Close stops a running subscription and waits briefly for it to exit
func (p *RedisPubSub) Close() error {
	p.mu.Lock()
	cancelFn := p.cancelFn
	p.mu.Unlock()

	if cancelFn == nil {
		return nil
	}
	cancelFn()
	select {
	case <-p.doneCh:
	case <-time.After(defaultCloseTimeout):
		p.logger.Warn("Timeout waiting for subscription to stop")
	}
	return nil
}
