// Package platform describes chat messages and notifications independently of any
// particular chat client.
package platform

import (
	"sort"
	"time"
)

// Location says where a message was posted relative to the tracked channel.
type Location int

const (
	// LocationOther is any channel that is neither the tracked channel nor a public thread.
	LocationOther Location = iota
	// LocationChannel is the tracked channel itself.
	LocationChannel
	// LocationThread is a public thread. The thread's id is the message's ChannelID.
	LocationThread
)

func (l Location) String() string {
	switch l {
	case LocationChannel:
		return "channel"
	case LocationThread:
		return "thread"
	default:
		return "other"
	}
}

// Reaction is one emoji on a message with its current count.
type Reaction struct {
	Emoji string
	Count int
}

// Message is a chat message as seen by the sync engine.
type Message struct {
	ID        string
	ChannelID string
	Location  Location
	Content   string
	CreatedAt time.Time

	// Bot and System mark messages that are never parsed.
	Bot    bool
	System bool

	Reactions []Reaction

	// ThreadID is set when a thread was started from this message.
	ThreadID string
}

// HasReaction reports whether the message carries at least one emoji reaction.
func (m Message) HasReaction(emoji string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && r.Count > 0 {
			return true
		}
	}
	return false
}

// FromUser reports whether the message was written by a person.
func (m Message) FromUser() bool {
	return !m.Bot && !m.System
}

// SortByCreated orders messages oldest first. Ties keep their relative order.
func SortByCreated(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
