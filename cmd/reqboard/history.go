package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/reqboard/reqboard/internal/engine"
	"github.com/reqboard/reqboard/internal/journal"
	"github.com/reqboard/reqboard/internal/request"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "board",
	Short:   "Show recent board changes from the event journal",
	Long: `Show the newest entries of the event journal written by 'reqboard serve'
when JOURNAL_PATH (or journal_path in reqboard.yaml) is set.

Example:
  reqboard history --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("journal")
		if path == "" {
			path = cfg.JournalPath
		}
		if path == "" {
			return fmt.Errorf("no journal configured, set JOURNAL_PATH or pass --journal")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read journal: %w", err)
		}

		limit, _ := cmd.Flags().GetInt("limit")

		j, err := journal.Open(path, log.New(io.Discard, "", 0))
		if err != nil {
			return err
		}
		defer j.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		entries, err := j.Recent(ctx, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle().Render(fmt.Sprintf("Last %d changes (%s)", len(entries), j.Path())))
		for _, e := range entries {
			fmt.Fprintln(out, formatEntry(e))
		}
		return nil
	},
}

// formatEntry renders one journal line: sequence, time, type, id and summary.
func formatEntry(e journal.Entry) string {
	var ev engine.Event
	summary := ""
	if err := json.Unmarshal(e.Payload, &ev); err == nil && ev.Request != nil {
		summary = summarize(ev.Request)
	}

	line := fmt.Sprintf("%5d  %s  %-14s  %s",
		e.Seq, mutedStyle().Render(e.RecordedAt.Local().Format("2006-01-02 15:04:05")), styleKind(e.Type), e.RequestID)
	if summary != "" {
		line += "  " + summary
	}
	return line
}

func styleKind(t engine.EventType) string {
	switch t {
	case engine.EventAdd, engine.EventUpdate:
		return doneStyle().Render(string(t))
	case engine.EventDelete:
		return errorStyle().Render(string(t))
	}
	return string(t)
}

func summarize(r *request.Request) string {
	s := fmt.Sprintf("%s: %s (%s)", r.Author, r.ShortDescription, r.ShortDate())
	if r.IsDone {
		s += " " + request.DoneReaction
	}
	return s
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().String("journal", "", "Journal database (default: JOURNAL_PATH)")

	rootCmd.AddCommand(historyCmd)
}
