// Package engine keeps the set of tracked requests in sync with a chat channel.
//
// The engine:
// 1. Rebuilds the tracked set from recent channel history on startup
// 2. Applies platform notifications (messages, thread replies, reactions) as they arrive
// 3. Publishes an add, update or delete event for every change
// 4. Serves snapshots and the "mark done" action to the HTTP layer
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/reqboard/reqboard/internal/collection"
	"github.com/reqboard/reqboard/internal/platform"
	"github.com/reqboard/reqboard/internal/request"
)

// ErrNotFound is returned when an id does not belong to a tracked request.
var ErrNotFound = errors.New("request not found")

// Config holds configuration for the engine.
type Config struct {
	// ChannelID is the tracked channel. Required.
	ChannelID string

	// MessageCount is how many recent channel messages the startup resync reads
	MessageCount int

	// DoneEmoji is the reaction that marks a request as done
	DoneEmoji string

	// Logger for engine activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. ChannelID still has to be set.
func DefaultConfig() *Config {
	return &Config{
		MessageCount: 50,
		DoneEmoji:    request.DoneReaction,
		Logger:       log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Engine owns the tracked requests. It is safe for concurrent use.
type Engine struct {
	platform Platform
	sink     Sink
	config   *Config

	mu       sync.RWMutex
	requests *collection.Indexed[string, *request.Request]

	turns *turnQueue
	wg    sync.WaitGroup
}

// New creates an engine tracking channelID with default settings.
func New(p Platform, sink Sink, channelID string) (*Engine, error) {
	config := DefaultConfig()
	config.ChannelID = channelID
	return NewWithConfig(p, sink, config)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(p Platform, sink Sink, config *Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("platform cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.ChannelID == "" {
		return nil, fmt.Errorf("channel id cannot be empty")
	}

	defaults := DefaultConfig()
	if config.MessageCount <= 0 {
		config.MessageCount = defaults.MessageCount
	}
	if config.DoneEmoji == "" {
		config.DoneEmoji = defaults.DoneEmoji
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if sink == nil {
		sink = Sinks{}
	}

	return &Engine{
		platform: p,
		sink:     sink,
		config:   config,
		requests: collection.New(func(r *request.Request) string { return r.ID }),
		turns:    newTurnQueue(),
	}, nil
}

// Start rebuilds the tracked set and then applies notifications until ctx is cancelled
// or the channel is closed.
//
// A failed resync is logged and the engine carries on with an empty set.
func (e *Engine) Start(ctx context.Context, notifications <-chan platform.Notification) error {
	e.config.Logger.Printf("Starting engine for channel %s", e.config.ChannelID)

	if err := e.Resync(ctx); err != nil {
		e.config.Logger.Printf("Error during resync: %v", err)
	}

	return e.Run(ctx, notifications)
}

// Run applies notifications until ctx is cancelled or the channel is closed.
//
// Each notification gets a turn on its key in arrival order and is then handled on its
// own goroutine, so a slow fetch for one request does not hold up the others. Run waits
// for in-flight handlers before returning.
func (e *Engine) Run(ctx context.Context, notifications <-chan platform.Notification) error {
	defer e.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			e.config.Logger.Printf("Shutdown signal received, waiting on %d busy keys", e.turns.pending())
			return nil

		case n, ok := <-notifications:
			if !ok {
				e.config.Logger.Println("Notification source closed")
				return nil
			}

			t := e.turns.reserve(n.Key())
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.handleTurn(ctx, n, t)
			}()
		}
	}
}

// Handle applies a single notification and returns once it has been processed.
func (e *Engine) Handle(ctx context.Context, n platform.Notification) {
	e.handleTurn(ctx, n, e.turns.reserve(n.Key()))
}

func (e *Engine) handleTurn(ctx context.Context, n platform.Notification, t *turn) {
	if t.queued() {
		e.config.Logger.Printf("Queued %s behind pending operation on %s", n.Kind, t.key)
	}
	if err := t.wait(ctx); err != nil {
		t.abandon()
		e.config.Logger.Printf("Dropped %s: %v", n, err)
		return
	}
	defer t.release()

	e.dispatch(ctx, n)
}

// Snapshot returns copies of the tracked requests in order.
func (e *Engine) Snapshot() []request.Request {
	e.mu.RLock()
	defer e.mu.RUnlock()

	all := e.requests.All()
	out := make([]request.Request, len(all))
	for i, r := range all {
		out[i] = *r.Clone()
	}
	return out
}

// Find returns a copy of the tracked request with the given id.
func (e *Engine) Find(id string) (request.Request, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.requests.Find(id)
	if !ok {
		return request.Request{}, false
	}
	return *r.Clone(), true
}

// Len returns the number of tracked requests.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.requests.Len()
}

// MarkDone asks the platform to put the done reaction on a tracked request.
// Returns ErrNotFound if id is not tracked.
func (e *Engine) MarkDone(ctx context.Context, id string) error {
	r, ok := e.Find(id)
	if !ok {
		return ErrNotFound
	}

	if err := e.platform.React(ctx, e.config.ChannelID, id, e.config.DoneEmoji); err != nil {
		return fmt.Errorf("failed to react to %s: %w", id, err)
	}

	e.config.Logger.Printf("Marked done (%s): %s %s", e.config.DoneEmoji, r.Author, r.ID)
	return nil
}

func (e *Engine) publish(ev Event) {
	e.sink.Publish(ev)
}
