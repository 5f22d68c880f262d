// Package relay republishes board events on a Redis pub/sub channel.
//
// The payload is the same JSON the dashboard sends over WebSocket, so any process that
// can SUBSCRIBE can follow the board. Delivery is best effort.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reqboard/reqboard/internal/engine"
)

// DefaultChannel is used when no channel name is configured.
const DefaultChannel = "reqboard:events"

// queueSize bounds the events waiting to be published.
const queueSize = 100

// Publisher is an engine.Sink backed by Redis PUBLISH. Events are queued and published
// by a background goroutine; Publish never waits on Redis.
type Publisher struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
	logger  *log.Logger

	queue  chan queued
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queued struct {
	typ  engine.EventType
	data []byte
}

// NewPublisher creates a publisher for channel. An empty channel uses DefaultChannel.
// The caller must call Close.
func NewPublisher(redisOpts *redis.Options, channel string, logger *log.Logger) (*Publisher, error) {
	if redisOpts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[relay] ", log.LstdFlags)
	}

	// Per-publish deadlines must bound socket reads too.
	opts := *redisOpts
	opts.ContextTimeoutEnabled = true

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		rdb:     redis.NewClient(&opts),
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
		queue:   make(chan queued, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(1)
	go p.publishLoop()
	return p, nil
}

// Ping verifies Redis connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Channel returns the pub/sub channel name.
func (p *Publisher) Channel() string {
	return p.channel
}

// Publish implements engine.Sink. The event is dropped when the queue is full or the
// publisher is closed.
func (p *Publisher) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Printf("Failed to marshal event: %v", err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- queued{typ: ev.Type, data: data}:
	default:
		p.logger.Printf("Warning: relay queue full, dropping %s", ev.Type)
	}
}

// publishLoop sends queued events until the queue is closed
func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for q := range p.queue {
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		err := p.rdb.Publish(ctx, p.channel, q.data).Err()
		cancel()

		if err != nil {
			p.logger.Printf("Failed to publish %s to %s: %v", q.typ, p.channel, err)
		}
	}
}

// Close stops accepting events, gives queued ones one publish timeout to go out and
// closes the Redis connection. Whatever is still queued after that is dropped.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		p.logger.Printf("Warning: dropping %d queued events on close", len(p.queue))
		p.cancel()
		<-drained
	}
	p.cancel()

	return p.rdb.Close()
}

// Subscription delivers relayed events.
type Subscription struct {
	pubsub *redis.PubSub
	events chan engine.Event
	errors chan error
	cancel context.CancelFunc
}

// Subscribe follows channel on the Redis server described by redisOpts.
// The subscription is confirmed before Subscribe returns.
func Subscribe(ctx context.Context, redisOpts *redis.Options, channel string) (*Subscription, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	rdb := redis.NewClient(redisOpts)
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		pubsub: pubsub,
		events: make(chan engine.Event, 10),
		errors: make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		defer close(s.events)
		defer rdb.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev engine.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case s.errors <- fmt.Errorf("failed to unmarshal event: %w", err):
					default:
					}
					continue
				}
				select {
				case s.events <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return s, nil
}

// Events returns the channel of received events. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan engine.Event {
	return s.events
}

// Errors returns payloads that could not be decoded.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	s.cancel()
	return s.pubsub.Close()
}
