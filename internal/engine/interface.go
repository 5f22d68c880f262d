package engine

import (
	"context"

	"github.com/reqboard/reqboard/internal/platform"
)

// Platform is everything the engine needs from the chat platform.
//
// Implementations talk to the network; every method may block and must honour ctx.
// The engine treats every error as a dropped notification: it logs and moves on.
//
// Thread ids must equal the id of the message the thread was started from (true on
// Discord). Notifications are serialized per platform.Notification.Key, which keys
// thread activity by thread id and channel activity by message id; the two only meet
// on one request under that rule.
type Platform interface {
	// RecentMessages returns up to limit of the newest messages in a channel.
	// Order is not significant; the engine sorts by creation time.
	//
	// Used once, by the startup resync.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error)

	// ThreadMessages returns every message posted inside a thread. The thread's
	// starter message is not part of the result.
	//
	// Example:
	//   replies, err := p.ThreadMessages(ctx, "1192837465")
	ThreadMessages(ctx context.Context, threadID string) ([]platform.Message, error)

	// ThreadStarter returns the channel message a thread was started from.
	// Returns nil and no error if the thread has no starter (for example, it was
	// deleted).
	ThreadStarter(ctx context.Context, threadID string) (*platform.Message, error)

	// React attaches emoji to a message.
	//
	// Used by MarkDone. The platform reports the new reaction back as a
	// ReactionAdd notification, which is what actually flips the done flag.
	React(ctx context.Context, channelID, messageID, emoji string) error
}
