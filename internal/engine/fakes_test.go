package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/reqboard/reqboard/internal/platform"
)

const testChannel = "chan-1"

var errFetch = errors.New("fetch failed")

type reactCall struct {
	channelID string
	messageID string
	emoji     string
}

// fakePlatform serves canned messages. ThreadMessages can be made to block per thread.
type fakePlatform struct {
	mu sync.Mutex

	recent    []platform.Message
	recentErr error

	threads   map[string][]platform.Message
	threadErr error

	starters   map[string]*platform.Message
	starterErr error

	reacts   []reactCall
	reactErr error

	gates   map[string]chan struct{}
	entered chan string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		threads:  make(map[string][]platform.Message),
		starters: make(map[string]*platform.Message),
		gates:    make(map[string]chan struct{}),
		entered:  make(chan string, 16),
	}
}

func (f *fakePlatform) RecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	out := append([]platform.Message(nil), f.recent...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePlatform) ThreadMessages(ctx context.Context, threadID string) ([]platform.Message, error) {
	f.mu.Lock()
	gate := f.gates[threadID]
	f.mu.Unlock()

	if gate != nil {
		f.entered <- threadID
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return append([]platform.Message(nil), f.threads[threadID]...), nil
}

func (f *fakePlatform) ThreadStarter(ctx context.Context, threadID string) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.starterErr != nil {
		return nil, f.starterErr
	}
	return f.starters[threadID], nil
}

func (f *fakePlatform) React(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactErr != nil {
		return f.reactErr
	}
	f.reacts = append(f.reacts, reactCall{channelID: channelID, messageID: messageID, emoji: emoji})
	return nil
}

// gate makes ThreadMessages for threadID block until the returned func is called.
func (f *fakePlatform) gate(threadID string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[threadID] = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

// addThread registers a thread started from starter with the given replies.
func (f *fakePlatform) addThread(starter platform.Message, replies ...platform.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := starter
	f.starters[starter.ID] = &s
	f.threads[starter.ID] = replies
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := s.Events(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(s.Events()))
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakePlatform, *recordingSink) {
	t.Helper()
	p := newFakePlatform()
	sink := &recordingSink{}
	e, err := NewWithConfig(p, sink, &Config{
		ChannelID: testChannel,
		Logger:    log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	return e, p, sink
}

var clock = time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC)

func channelMsg(id, content string, minute int) platform.Message {
	return platform.Message{
		ID:        id,
		ChannelID: testChannel,
		Location:  platform.LocationChannel,
		Content:   content,
		CreatedAt: clock.Add(time.Duration(minute) * time.Minute),
	}
}

func threadMsg(id, threadID, content string, minute int) platform.Message {
	return platform.Message{
		ID:        id,
		ChannelID: threadID,
		Location:  platform.LocationThread,
		Content:   content,
		CreatedAt: clock.Add(time.Duration(minute) * time.Minute),
	}
}

func created(m platform.Message) platform.Notification {
	return platform.MessageNotification(platform.MessageCreate, m)
}

func updated(m platform.Message) platform.Notification {
	return platform.MessageNotification(platform.MessageUpdate, m)
}
