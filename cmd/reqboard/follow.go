package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/reqboard/reqboard/internal/engine"
	"github.com/reqboard/reqboard/internal/relay"
)

var followCmd = &cobra.Command{
	Use:     "follow",
	GroupID: "board",
	Short:   "Print board changes relayed through Redis",
	Long: `Subscribe to the Redis channel a running 'reqboard serve' relays to and print
every change as it happens. Needs REDIS_URL (and optionally REDIS_CHANNEL).

Example:
  REDIS_URL=redis://localhost:6379/0 reqboard follow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		url, _ := cmd.Flags().GetString("redis")
		if url == "" {
			url = cfg.RedisURL
		}
		if url == "" {
			return fmt.Errorf("no relay configured, set REDIS_URL or pass --redis")
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		count, _ := cmd.Flags().GetInt("count")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sub, err := relay.Subscribe(ctx, opts, cfg.RedisChannel)
		if err != nil {
			return err
		}
		defer sub.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, mutedStyle().Render("Following board changes, press Ctrl+C to stop..."))

		seen := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-sub.Errors():
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle().Render("Warning: ")+err.Error())
			case ev, ok := <-sub.Events():
				if !ok {
					return nil
				}
				fmt.Fprintln(out, formatEvent(time.Now(), ev))
				seen++
				if count > 0 && seen >= count {
					return nil
				}
			}
		}
	},
}

// formatEvent renders a relayed event: time, type, id and summary.
func formatEvent(at time.Time, ev engine.Event) string {
	id := ev.ID
	if ev.Request != nil {
		id = ev.Request.ID
	}
	line := fmt.Sprintf("%s  %-14s  %s", mutedStyle().Render(at.Format("15:04:05")), styleKind(ev.Type), id)
	if ev.Request != nil {
		line += "  " + summarize(ev.Request)
	}
	return line
}

func init() {
	followCmd.Flags().String("redis", "", "Redis URL (default: REDIS_URL)")
	followCmd.Flags().IntP("count", "c", 0, "Exit after this many changes (0 runs until interrupted)")

	rootCmd.AddCommand(followCmd)
}
