package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/reqboard/reqboard/internal/platform"
)

// maxPageSize is the most messages Discord returns per history request.
const maxPageSize = 100

// RecentMessages returns up to limit of the newest messages in channelID.
func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	msgs, err := c.history(ctx, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages of %s: %w", channelID, err)
	}
	return convertMessages(msgs, platform.LocationChannel), nil
}

// ThreadMessages returns every message in a thread.
func (c *Client) ThreadMessages(ctx context.Context, threadID string) ([]platform.Message, error) {
	msgs, err := c.history(ctx, threadID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages of thread %s: %w", threadID, err)
	}
	return convertMessages(msgs, platform.LocationThread), nil
}

// ThreadStarter returns the channel message a thread was started from, or nil when the
// thread has none (or the starter is gone).
func (c *Client) ThreadStarter(ctx context.Context, threadID string) (*platform.Message, error) {
	thread, err := c.channel(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread %s: %w", threadID, err)
	}
	if locationOf(thread) != platform.LocationThread || thread.ParentID == "" {
		return nil, nil
	}

	// A thread started from a message shares its id.
	m, err := c.api.ChannelMessage(thread.ParentID, thread.ID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch starter of thread %s: %w", threadID, err)
	}

	parent, err := c.channel(ctx, thread.ParentID)
	loc := platform.LocationChannel
	if err == nil {
		loc = locationOf(parent)
	}
	starter := convertMessage(m, loc)
	return &starter, nil
}

// React adds emoji to a message as the bot.
func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.api.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

// history pages backwards through a channel. limit <= 0 reads everything.
func (c *Client) history(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	var (
		out    []*discordgo.Message
		before string
	)
	for limit <= 0 || len(out) < limit {
		size := maxPageSize
		if limit > 0 && limit-len(out) < size {
			size = limit - len(out)
		}

		page, err := c.api.ChannelMessages(channelID, size, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < size {
			break
		}
		before = page[len(page)-1].ID
	}
	return out, nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
