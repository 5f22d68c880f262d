package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/reqboard/reqboard/internal/dashboard"
	"github.com/reqboard/reqboard/internal/discord"
	"github.com/reqboard/reqboard/internal/engine"
	"github.com/reqboard/reqboard/internal/journal"
	"github.com/reqboard/reqboard/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "board",
	Short:   "Track the channel and serve the live board",
	Long: `Connect to Discord, rebuild the board from the channel's recent history and
keep it up to date while serving it over HTTP.

Endpoints:
  GET  /api/data   current requests
  POST /api/done   {"id": "..."} adds the done reaction to a request
  GET  /ws         live add-message, update-message and delete-message events
  GET  /health     status, client and request counts

/data and /done answer the same as their /api forms.

Required settings: DISCORD_TOKEN and CHANNEL_ID (environment, .env or
reqboard.yaml). Optional: JOURNAL_PATH records every change in SQLite,
REDIS_URL republishes every change on REDIS_CHANNEL.

Example:
  reqboard serve --port 3111`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer cfg.Close()

		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("static") {
			cfg.StaticDir, _ = cmd.Flags().GetString("static")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if cfg.Watch(cfg.Logger("config"), nil) {
			cfg.Logger("config").Printf("Using config file %s", cfg.File())
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		client, err := discord.New(&discord.Config{
			Token:     cfg.DiscordToken,
			ChannelID: cfg.ChannelID,
			DoneEmoji: cfg.DoneEmoji,
			Logger:    cfg.Logger("discord"),
		})
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Open(ctx); err != nil {
			return fmt.Errorf("failed to connect to Discord: %w", err)
		}

		// The dashboard is created after the engine it serves; nothing is published
		// before Start.
		var server *dashboard.Server
		sinks := engine.Sinks{engine.SinkFunc(func(ev engine.Event) { server.Publish(ev) })}

		if cfg.JournalPath != "" {
			j, err := openJournal(ctx, cfg.JournalPath, cfg.Logger("journal"))
			if err != nil {
				return err
			}
			defer j.Close()
			sinks = append(sinks, j)
		}

		if cfg.RedisURL != "" {
			pub, err := openRelay(ctx, cfg.RedisURL, cfg.RedisChannel, cfg.Logger("relay"))
			if err != nil {
				return err
			}
			defer pub.Close()
			sinks = append(sinks, pub)
		}

		eng, err := engine.NewWithConfig(client, sinks, &engine.Config{
			ChannelID:    cfg.ChannelID,
			MessageCount: cfg.MessageCount,
			DoneEmoji:    cfg.DoneEmoji,
			Logger:       cfg.Logger("engine"),
		})
		if err != nil {
			return err
		}

		server = dashboard.NewServer(eng, &dashboard.Config{
			Port:      cfg.Port,
			StaticDir: cfg.StaticDir,
			Logger:    cfg.Logger("dashboard"),
		})
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			if err := server.Stop(); err != nil {
				cfg.Logger("dashboard").Printf("Error during shutdown: %v", err)
			}
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "%s http://localhost:%d\n", headerStyle().Render("Board:"), cfg.Port)
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle().Render("Press Ctrl+C to stop..."))

		if err := eng.Start(ctx, client.Notifications()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
		return nil
	},
}

func openJournal(ctx context.Context, path string, logger *log.Logger) (*journal.Journal, error) {
	j, err := journal.Open(path, logger)
	if err != nil {
		return nil, err
	}
	if err := j.InitSchema(ctx); err != nil {
		_ = j.Close()
		return nil, err
	}
	logger.Printf("Recording changes to %s", path)
	return j, nil
}

func openRelay(ctx context.Context, url, channel string, logger *log.Logger) (*relay.Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	pub, err := relay.NewPublisher(opts, channel, logger)
	if err != nil {
		return nil, err
	}
	if err := pub.Ping(ctx); err != nil {
		logger.Printf("Warning: Redis not reachable yet: %v", err)
	}
	logger.Printf("Relaying changes to %s", pub.Channel())
	return pub, nil
}

func init() {
	serveCmd.Flags().IntP("port", "p", 3111, "Port to listen on (default: PORT)")
	serveCmd.Flags().String("static", "", "Directory served at / (default: STATIC_DIR)")

	rootCmd.AddCommand(serveCmd)
}
