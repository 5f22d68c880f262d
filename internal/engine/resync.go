package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/reqboard/reqboard/internal/platform"
	"github.com/reqboard/reqboard/internal/request"
)

// Resync discards the tracked set and rebuilds it from the channel's recent history.
//
// Messages are parsed oldest first and each one's thread replies are replayed on top of
// it before the validity check. No events are published. On any fetch error the tracked
// set is left as it was.
//
// Resync is meant for startup, before Run begins delivering notifications.
func (e *Engine) Resync(ctx context.Context) error {
	e.config.Logger.Println("Performing full resync")
	start := time.Now()

	msgs, err := e.platform.RecentMessages(ctx, e.config.ChannelID, e.config.MessageCount)
	if err != nil {
		return fmt.Errorf("failed to fetch channel messages: %w", err)
	}
	platform.SortByCreated(msgs)

	tracked := make([]*request.Request, 0, len(msgs))
	for _, m := range msgs {
		if !m.FromUser() {
			continue
		}

		r := request.New(m.ID, m.Content, m.HasReaction(e.config.DoneEmoji))
		if m.ThreadID != "" {
			replies, err := e.platform.ThreadMessages(ctx, m.ThreadID)
			if err != nil {
				return fmt.Errorf("failed to fetch thread %s: %w", m.ThreadID, err)
			}
			platform.SortByCreated(replies)
			for _, reply := range replies {
				if reply.FromUser() {
					r.Override(reply.Content)
				}
			}
		}

		if r.IsValid() {
			tracked = append(tracked, r)
		}
	}

	for _, r := range tracked {
		e.config.Logger.Println(r.String())
	}

	e.mu.Lock()
	e.requests.ReplaceAll(tracked)
	e.mu.Unlock()

	e.config.Logger.Printf("Resync complete: %d requests from %d messages in %v",
		len(tracked), len(msgs), time.Since(start).Round(time.Millisecond))
	return nil
}
