package discord

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/reqboard/reqboard/internal/platform"
)

// eventReactionRemoveEmoji is dispatched when a moderator clears one emoji from a message.
const eventReactionRemoveEmoji = "MESSAGE_REACTION_REMOVE_EMOJI"

// locationOf classifies a channel. Only guild text channels and public threads matter.
func locationOf(ch *discordgo.Channel) platform.Location {
	if ch == nil {
		return platform.LocationOther
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText:
		return platform.LocationChannel
	case discordgo.ChannelTypeGuildPublicThread:
		return platform.LocationThread
	default:
		return platform.LocationOther
	}
}

// isSystem reports whether m was generated by Discord rather than typed by someone.
func isSystem(m *discordgo.Message) bool {
	return m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply
}

func convertMessage(m *discordgo.Message, loc platform.Location) platform.Message {
	out := platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Location:  loc,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
		Bot:       m.Author != nil && m.Author.Bot,
		System:    isSystem(m),
	}
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		out.Reactions = append(out.Reactions, platform.Reaction{Emoji: r.Emoji.Name, Count: r.Count})
	}
	if m.Thread != nil {
		out.ThreadID = m.Thread.ID
	}
	return out
}

func convertMessages(msgs []*discordgo.Message, loc platform.Location) []platform.Message {
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, convertMessage(m, loc))
	}
	return out
}

// reactionCount returns how many copies of emoji are left on m.
func reactionCount(m *discordgo.Message, emoji string) int {
	for _, r := range m.Reactions {
		if r != nil && r.Emoji != nil && r.Emoji.Name == emoji {
			return r.Count
		}
	}
	return 0
}

type removeEmojiPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Emoji     struct {
		Name string `json:"name"`
	} `json:"emoji"`
}

// parseRemoveEmoji decodes a raw MESSAGE_REACTION_REMOVE_EMOJI dispatch.
func parseRemoveEmoji(raw json.RawMessage) (platform.Notification, error) {
	var p removeEmojiPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return platform.Notification{}, fmt.Errorf("failed to decode %s: %w", eventReactionRemoveEmoji, err)
	}
	if p.MessageID == "" {
		return platform.Notification{}, fmt.Errorf("%s without message id", eventReactionRemoveEmoji)
	}
	return platform.Notification{
		Kind:      platform.ReactionRemoveEmoji,
		MessageID: p.MessageID,
		ChannelID: p.ChannelID,
		Emoji:     p.Emoji.Name,
	}, nil
}

// checkPermissions returns an error naming the first missing permission.
func checkPermissions(perms int64) error {
	if perms&discordgo.PermissionViewChannel == 0 {
		return fmt.Errorf("missing permissions: VIEW_CHANNEL")
	}
	if perms&discordgo.PermissionReadMessageHistory == 0 {
		return fmt.Errorf("missing permissions: READ_MESSAGE_HISTORY")
	}
	return nil
}
