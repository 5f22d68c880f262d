package platform

import "fmt"

// Kind identifies a notification.
type Kind int

const (
	MessageCreate Kind = iota + 1
	MessageUpdate
	MessageDelete
	ReactionAdd
	ReactionRemove
	ReactionRemoveEmoji
	ReactionRemoveAll
)

func (k Kind) String() string {
	switch k {
	case MessageCreate:
		return "msg-create"
	case MessageUpdate:
		return "msg-update"
	case MessageDelete:
		return "msg-delete"
	case ReactionAdd:
		return "reaction-add"
	case ReactionRemove:
		return "reaction-rem"
	case ReactionRemoveEmoji:
		return "reaction-rem-emoji"
	case ReactionRemoveAll:
		return "reaction-rem-all"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Notification is a single change reported by the chat platform.
//
// Which fields are set depends on Kind:
//   - MessageCreate, MessageUpdate: Message, plus MessageID/ChannelID/Location copied from it
//   - MessageDelete: MessageID, ChannelID, Location
//   - ReactionAdd, ReactionRemoveEmoji: MessageID, ChannelID, Emoji
//   - ReactionRemove: MessageID, ChannelID, Emoji, Remaining (count left after removal)
//   - ReactionRemoveAll: MessageID, ChannelID
type Notification struct {
	Kind      Kind
	Message   Message
	MessageID string
	ChannelID string
	Location  Location
	Emoji     string
	Remaining int
}

// MessageNotification wraps a created or updated message.
func MessageNotification(kind Kind, m Message) Notification {
	return Notification{
		Kind:      kind,
		Message:   m,
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		Location:  m.Location,
	}
}

// Key groups notifications that touch the same request. Thread messages are keyed by
// their thread, everything else by message id.
//
// This relies on a thread sharing its id with the channel message it was started from,
// as Discord threads do. An adapter for a platform where that does not hold must map
// thread notifications onto the starter's id, or work on one request will no longer be
// serialized.
func (n Notification) Key() string {
	if n.Location == LocationThread {
		return n.ChannelID
	}
	return n.MessageID
}

func (n Notification) String() string {
	return fmt.Sprintf("%s %s/%s (%s)", n.Kind, n.ChannelID, n.MessageID, n.Location)
}
