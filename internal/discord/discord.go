// Package discord connects the engine to a Discord channel.
//
// Gateway events are turned into platform notifications on a single goroutine so they
// reach the engine in the order Discord sent them. The REST side implements the
// engine's Platform interface.
package discord

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/reqboard/reqboard/internal/platform"
	"github.com/reqboard/reqboard/internal/request"
)

// restAPI is the subset of *discordgo.Session the client calls.
type restAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Config holds configuration for the Discord client.
type Config struct {
	// Token is the bot token, without the "Bot " prefix. Required.
	Token string

	// ChannelID is the tracked text channel. Required.
	ChannelID string

	// DoneEmoji is the reaction that marks a request done
	DoneEmoji string

	// ReadyTimeout bounds the wait for the gateway handshake
	ReadyTimeout time.Duration

	// Logger for client activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. Token and ChannelID still have to be set.
func DefaultConfig() *Config {
	return &Config{
		DoneEmoji:    request.DoneReaction,
		ReadyTimeout: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[discord] ", log.LstdFlags),
	}
}

// resolveFunc turns a gateway event into a notification. It may call the REST API.
type resolveFunc func(ctx context.Context) (platform.Notification, bool)

// Client is a Discord bot session bound to one channel.
type Client struct {
	config  *Config
	session *discordgo.Session
	api     restAPI
	state   *discordgo.State
	logger  *log.Logger

	pending       chan resolveFunc
	notifications chan platform.Notification
	ready         chan struct{}
	readyOnce     sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. Nothing is opened until Open is called.
func New(config *Config) (*Client, error) {
	if config == nil || config.Token == "" {
		return nil, fmt.Errorf("missing DISCORD_TOKEN")
	}
	if config.ChannelID == "" {
		return nil, fmt.Errorf("missing CHANNEL_ID")
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions
	// Handlers must run in gateway order.
	session.SyncEvents = true

	c := newClient(session, config)
	c.session = session
	c.state = session.State
	c.registerHandlers()
	return c, nil
}

func newClient(api restAPI, config *Config) *Client {
	defaults := DefaultConfig()
	if config.DoneEmoji == "" {
		config.DoneEmoji = defaults.DoneEmoji
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = defaults.ReadyTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:        config,
		api:           api,
		logger:        config.Logger,
		pending:       make(chan resolveFunc, 256),
		notifications: make(chan platform.Notification, 256),
		ready:         make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.resolveLoop()
	return c
}

// Notifications returns the ordered stream of channel activity. It is closed by Close.
func (c *Client) Notifications() <-chan platform.Notification {
	return c.notifications
}

// Open connects to the gateway and verifies the tracked channel can be read.
// A missing permission is returned as an error.
func (c *Client) Open(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	timer := time.NewTimer(c.config.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-c.ready:
	case <-timer.C:
		return fmt.Errorf("timed out waiting for gateway ready")
	case <-ctx.Done():
		return ctx.Err()
	}

	user := c.session.State.User
	if user == nil {
		return fmt.Errorf("failed to log in with the provided token")
	}
	c.logger.Printf("Logged in as: %s", user.String())

	ch, err := c.verifyChannel(ctx, user.ID)
	if err != nil {
		return err
	}
	c.logger.Printf("Connected to channel: #%s (%s)", ch.Name, ch.ID)
	return nil
}

// verifyChannel checks the tracked channel is a guild text channel the bot can read.
func (c *Client) verifyChannel(ctx context.Context, userID string) (*discordgo.Channel, error) {
	ch, err := c.api.Channel(c.config.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel %s: %w", c.config.ChannelID, err)
	}
	if ch.Type != discordgo.ChannelTypeGuildText {
		return nil, fmt.Errorf("invalid channel or non-text channel: %s", c.config.ChannelID)
	}

	perms, err := c.api.UserChannelPermissions(userID, ch.ID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot permissions: %w", err)
	}
	if err := checkPermissions(perms); err != nil {
		return nil, err
	}
	return ch, nil
}

// Close disconnects from the gateway and closes the notification stream.
func (c *Client) Close() error {
	c.cancel()

	var err error
	if c.session != nil {
		err = c.session.Close()
	}
	c.wg.Wait()

	c.logger.Println("Discord client stopped")
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

func (c *Client) registerHandlers() {
	c.session.AddHandlerOnce(func(_ *discordgo.Session, _ *discordgo.Ready) {
		c.readyOnce.Do(func() { close(c.ready) })
	})
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		c.enqueue(c.onMessageCreate(m.Message))
	})
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		c.enqueue(c.onMessageUpdate(m.Message))
	})
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		c.enqueue(c.onMessageDelete(m.Message))
	})
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		c.enqueue(c.onReactionAdd(r.MessageReaction))
	})
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		c.enqueue(c.onReactionRemove(r.MessageReaction))
	})
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemoveAll) {
		c.enqueue(c.onReactionRemoveAll(r.MessageReaction))
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
		if e.Type == eventReactionRemoveEmoji {
			c.enqueue(c.onReactionRemoveEmoji(e))
		}
	})
}

// enqueue hands a resolver to the ordered loop. It blocks when the loop falls behind.
func (c *Client) enqueue(fn resolveFunc) {
	if fn == nil {
		return
	}
	select {
	case c.pending <- fn:
	case <-c.ctx.Done():
	}
}

// resolveLoop runs resolvers one at a time so notifications keep gateway order.
func (c *Client) resolveLoop() {
	defer c.wg.Done()
	defer close(c.notifications)

	for {
		select {
		case <-c.ctx.Done():
			return
		case fn := <-c.pending:
			n, ok := fn(c.ctx)
			if !ok {
				continue
			}
			select {
			case c.notifications <- n:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

// channel looks a channel up in the gateway cache, falling back to REST.
func (c *Client) channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if c.state != nil {
		if ch, err := c.state.Channel(id); err == nil {
			return ch, nil
		}
	}
	return c.api.Channel(id, discordgo.WithContext(ctx))
}

func (c *Client) location(ctx context.Context, channelID string) platform.Location {
	ch, err := c.channel(ctx, channelID)
	if err != nil {
		c.logger.Printf("Failed to fetch channel %s: %v", channelID, err)
		return platform.LocationOther
	}
	return locationOf(ch)
}

func (c *Client) onMessageCreate(m *discordgo.Message) resolveFunc {
	if m == nil {
		return nil
	}
	return func(ctx context.Context) (platform.Notification, bool) {
		msg := convertMessage(m, c.location(ctx, m.ChannelID))
		return platform.MessageNotification(platform.MessageCreate, msg), true
	}
}

func (c *Client) onMessageUpdate(m *discordgo.Message) resolveFunc {
	if m == nil {
		return nil
	}
	return func(ctx context.Context) (platform.Notification, bool) {
		full := m
		// Partial updates carry no author; fetch the whole message.
		if m.Author == nil {
			fetched, err := c.api.ChannelMessage(m.ChannelID, m.ID, discordgo.WithContext(ctx))
			if err != nil {
				c.logger.Printf("Failed to fetch updated message %s: %v", m.ID, err)
				return platform.Notification{}, false
			}
			full = fetched
		}
		msg := convertMessage(full, c.location(ctx, full.ChannelID))
		return platform.MessageNotification(platform.MessageUpdate, msg), true
	}
}

func (c *Client) onMessageDelete(m *discordgo.Message) resolveFunc {
	if m == nil {
		return nil
	}
	return func(ctx context.Context) (platform.Notification, bool) {
		return platform.Notification{
			Kind:      platform.MessageDelete,
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			Location:  c.location(ctx, m.ChannelID),
		}, true
	}
}

func (c *Client) onReactionAdd(r *discordgo.MessageReaction) resolveFunc {
	if r == nil {
		return nil
	}
	return func(context.Context) (platform.Notification, bool) {
		return platform.Notification{
			Kind:      platform.ReactionAdd,
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
			Emoji:     r.Emoji.Name,
		}, true
	}
}

func (c *Client) onReactionRemove(r *discordgo.MessageReaction) resolveFunc {
	if r == nil {
		return nil
	}
	return func(ctx context.Context) (platform.Notification, bool) {
		n := platform.Notification{
			Kind:      platform.ReactionRemove,
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
			Emoji:     r.Emoji.Name,
		}
		if n.Emoji != c.config.DoneEmoji {
			return n, true
		}

		m, err := c.api.ChannelMessage(r.ChannelID, r.MessageID, discordgo.WithContext(ctx))
		if err != nil {
			if isNotFound(err) {
				// Gone; the delete notification takes care of it.
				return platform.Notification{}, false
			}
			c.logger.Printf("Failed to count reactions on %s: %v", r.MessageID, err)
			return platform.Notification{}, false
		}
		n.Remaining = reactionCount(m, n.Emoji)
		return n, true
	}
}

func (c *Client) onReactionRemoveAll(r *discordgo.MessageReaction) resolveFunc {
	if r == nil {
		return nil
	}
	return func(context.Context) (platform.Notification, bool) {
		return platform.Notification{
			Kind:      platform.ReactionRemoveAll,
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
		}, true
	}
}

func (c *Client) onReactionRemoveEmoji(e *discordgo.Event) resolveFunc {
	n, err := parseRemoveEmoji(e.RawData)
	if err != nil {
		c.logger.Printf("Ignoring event: %v", err)
		return nil
	}
	return func(context.Context) (platform.Notification, bool) {
		return n, true
	}
}
