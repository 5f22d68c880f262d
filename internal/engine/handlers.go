package engine

import (
	"context"

	"github.com/reqboard/reqboard/internal/platform"
	"github.com/reqboard/reqboard/internal/request"
)

// dispatch routes a notification to its handler.
func (e *Engine) dispatch(ctx context.Context, n platform.Notification) {
	switch n.Kind {
	case platform.MessageCreate:
		e.onMessageCreate(ctx, n.Message)

	case platform.MessageUpdate:
		e.onMessageUpdate(ctx, n.Message)

	case platform.MessageDelete:
		e.onMessageDelete(ctx, n)

	case platform.ReactionAdd:
		if n.Emoji != e.config.DoneEmoji {
			return
		}
		e.setDone(n.MessageID, true, n.Kind)

	case platform.ReactionRemove:
		// Only the last copy of the marker clears the flag.
		if n.Emoji != e.config.DoneEmoji || n.Remaining > 0 {
			return
		}
		e.setDone(n.MessageID, false, n.Kind)

	case platform.ReactionRemoveEmoji:
		if n.Emoji != e.config.DoneEmoji {
			return
		}
		e.setDone(n.MessageID, false, n.Kind)

	case platform.ReactionRemoveAll:
		e.setDone(n.MessageID, false, n.Kind)

	default:
		e.config.Logger.Printf("Ignoring unknown notification: %s", n)
	}
}

func (e *Engine) onMessageCreate(ctx context.Context, m platform.Message) {
	if !m.FromUser() {
		return
	}

	switch m.Location {
	case platform.LocationThread:
		e.syncThread(ctx, m.ChannelID, &m, "thread-msg")
	case platform.LocationChannel:
		if m.ChannelID != e.config.ChannelID {
			return
		}
		e.track(m)
	}
}

func (e *Engine) onMessageUpdate(ctx context.Context, m platform.Message) {
	if !m.FromUser() {
		return
	}

	switch m.Location {
	case platform.LocationThread:
		e.syncThread(ctx, m.ChannelID, &m, "thread-msg-upd")
	case platform.LocationChannel:
		if m.ChannelID != e.config.ChannelID {
			return
		}
		e.edit(m)
	}
}

func (e *Engine) onMessageDelete(ctx context.Context, n platform.Notification) {
	if e.untrack(n.MessageID) {
		return
	}

	// A deleted thread reply changes the merged view of its starter.
	if n.Location == platform.LocationThread {
		e.syncThread(ctx, n.ChannelID, nil, "thread-msg-del")
	}
}

// track parses a new channel message and starts tracking it if valid.
func (e *Engine) track(m platform.Message) {
	r := request.New(m.ID, m.Content, m.HasReaction(e.config.DoneEmoji))
	if !r.IsValid() {
		return
	}

	e.mu.Lock()
	if _, exists := e.requests.Find(r.ID); exists {
		e.mu.Unlock()
		e.config.Logger.Printf("Ignoring duplicate create for %s", r.ID)
		return
	}
	e.requests.Insert(r)
	out := r.Clone()
	e.mu.Unlock()

	e.publish(Event{Type: EventAdd, Request: out})
	e.config.Logger.Printf("Added message (msg-create): %s %s", out.Author, out.ID)
}

// edit merges an edited channel message into its tracked request.
func (e *Engine) edit(m platform.Message) {
	e.mu.Lock()
	r, ok := e.requests.Find(m.ID)
	if !ok {
		e.mu.Unlock()
		return
	}
	r.Override(m.Content)
	out := r.Clone()
	e.mu.Unlock()

	e.publish(Event{Type: EventUpdate, Request: out})
	e.config.Logger.Printf("Updated message (msg-edit): %s %s", out.Author, out.ID)
}

// untrack removes a tracked request. Returns false if id was not tracked.
func (e *Engine) untrack(id string) bool {
	e.mu.Lock()
	r, ok := e.requests.Find(id)
	if !ok {
		e.mu.Unlock()
		return false
	}
	author := r.Author
	e.requests.Delete(id)
	e.mu.Unlock()

	e.publish(Event{Type: EventDelete, ID: id})
	e.config.Logger.Printf("Deleted message: %s %s", author, id)
	return true
}

// setDone flips the done flag of a tracked request.
func (e *Engine) setDone(id string, done bool, kind platform.Kind) {
	e.mu.Lock()
	r, ok := e.requests.Find(id)
	if !ok {
		e.mu.Unlock()
		return
	}
	r.IsDone = done
	out := r.Clone()
	e.mu.Unlock()

	e.publish(Event{Type: EventUpdate, Request: out})
	e.config.Logger.Printf("Updated message (%s %s): %s %s", kind, e.config.DoneEmoji, out.Author, out.ID)
}

// syncThread recomputes the request a thread hangs off.
//
// The trigger message (if any) is merged first, then every reply in the thread is
// replayed oldest first, so later replies win regardless of which one changed. With a
// nil trigger the starter's own text is merged first instead.
func (e *Engine) syncThread(ctx context.Context, threadID string, trigger *platform.Message, label string) {
	starter, err := e.platform.ThreadStarter(ctx, threadID)
	if err != nil {
		e.config.Logger.Printf("Failed to fetch starter of thread %s: %v", threadID, err)
		return
	}
	if starter == nil {
		return
	}
	if _, ok := e.Find(starter.ID); !ok {
		return
	}

	replies, err := e.platform.ThreadMessages(ctx, threadID)
	if err != nil {
		e.config.Logger.Printf("Failed to fetch messages of thread %s: %v", threadID, err)
		return
	}
	platform.SortByCreated(replies)

	e.mu.Lock()
	r, ok := e.requests.Find(starter.ID)
	if !ok {
		// Deleted while the thread was being fetched.
		e.mu.Unlock()
		return
	}
	if trigger != nil {
		r.Override(trigger.Content)
	} else {
		r.Override(starter.Content)
	}
	for _, reply := range replies {
		if reply.FromUser() {
			r.Override(reply.Content)
		}
	}
	out := r.Clone()
	e.mu.Unlock()

	e.publish(Event{Type: EventUpdate, Request: out})
	e.config.Logger.Printf("Updated message (%s): %s %s", label, out.Author, out.ID)
}
