package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reqboard/reqboard/internal/platform"
	"github.com/reqboard/reqboard/internal/request"
)

const aliceBlock = "User: @alice\nRequest: Fix login bug\nDate: 2024-01-05\n\nAdditional context here"

func TestNewWithConfig_Validation(t *testing.T) {
	if _, err := NewWithConfig(nil, nil, &Config{ChannelID: "c"}); err == nil {
		t.Error("expected error for nil platform")
	}
	if _, err := NewWithConfig(newFakePlatform(), nil, &Config{}); err == nil {
		t.Error("expected error for empty channel id")
	}

	e, err := New(newFakePlatform(), nil, "c")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.config.MessageCount != 50 {
		t.Errorf("expected default message count 50, got %d", e.config.MessageCount)
	}
	if e.config.DoneEmoji != request.DoneReaction {
		t.Errorf("expected default done emoji, got %q", e.config.DoneEmoji)
	}
}

func TestHandle_CreateValidMessage(t *testing.T) {
	e, _, sink := newTestEngine(t)
	ctx := context.Background()

	e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))

	evs := sink.Events()
	if len(evs) != 1 || evs[0].Type != EventAdd {
		t.Fatalf("expected one add event, got %+v", evs)
	}
	if evs[0].Request.Author != "alice" || evs[0].Request.ID != "m1" {
		t.Errorf("unexpected request in event: %+v", evs[0].Request)
	}
	if _, ok := e.Find("m1"); !ok {
		t.Error("expected m1 to be tracked")
	}
}

func TestHandle_CreateIgnored(t *testing.T) {
	bot := channelMsg("bot", aliceBlock, 0)
	bot.Bot = true
	system := channelMsg("sys", aliceBlock, 0)
	system.System = true
	elsewhere := channelMsg("other", aliceBlock, 0)
	elsewhere.ChannelID = "another-channel"
	other := channelMsg("loc", aliceBlock, 0)
	other.Location = platform.LocationOther

	tests := []struct {
		name string
		msg  platform.Message
	}{
		{name: "invalid content", msg: channelMsg("m1", "hello there", 0)},
		{name: "bot author", msg: bot},
		{name: "system message", msg: system},
		{name: "different channel", msg: elsewhere},
		{name: "untracked location", msg: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, sink := newTestEngine(t)
			e.Handle(context.Background(), created(tt.msg))

			if n := len(sink.Events()); n != 0 {
				t.Errorf("expected no events, got %d", n)
			}
			if e.Len() != 0 {
				t.Errorf("expected nothing tracked, got %d", e.Len())
			}
		})
	}
}

func TestHandle_DuplicateCreate(t *testing.T) {
	e, _, sink := newTestEngine(t)
	ctx := context.Background()

	e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))
	e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))

	if e.Len() != 1 {
		t.Errorf("expected 1 tracked request, got %d", e.Len())
	}
	if n := len(sink.Events()); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
}

func TestHandle_EditTracked(t *testing.T) {
	e, _, sink := newTestEngine(t)
	ctx := context.Background()

	e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))
	e.Handle(ctx, updated(channelMsg("m1", "User: @alice\nRequest: Fix login bug v2", 0)))

	evs := sink.Events()
	if len(evs) != 2 || evs[1].Type != EventUpdate {
		t.Fatalf("expected add then update, got %+v", evs)
	}
	got, _ := e.Find("m1")
	if got.ShortDescription != "Fix login bug v2" {
		t.Errorf("expected new description, got %q", got.ShortDescription)
	}
	if got.RequestDate == nil || got.RequestDate.Format("2006-01-02") != "2024-01-05" {
		t.Errorf("expected date kept, got %v", got.RequestDate)
	}
}

func TestHandle_EditUntracked(t *testing.T) {
	e, _, sink := newTestEngine(t)

	// Editing an invalid message into a valid one does not start tracking it.
	e.Handle(context.Background(), updated(channelMsg("m1", aliceBlock, 0)))

	if len(sink.Events()) != 0 || e.Len() != 0 {
		t.Errorf("expected edit of untracked message to be ignored")
	}
}

func TestHandle_DeleteTracked(t *testing.T) {
	e, _, sink := newTestEngine(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		e.Handle(ctx, created(channelMsg(id, aliceBlock, i)))
	}
	e.Handle(ctx, platform.Notification{Kind: platform.MessageDelete, MessageID: "a", ChannelID: testChannel, Location: platform.LocationChannel})

	evs := sink.Events()
	last := evs[len(evs)-1]
	if last.Type != EventDelete || last.ID != "a" || last.Request != nil {
		t.Fatalf("expected delete event for a, got %+v", last)
	}
	if _, ok := e.Find("a"); ok {
		t.Error("expected a to be gone")
	}
	snap := e.Snapshot()
	if len(snap) != 2 || snap[0].ID != "b" || snap[1].ID != "c" {
		t.Errorf("unexpected order after delete: %+v", snap)
	}
	if pos, _ := e.requests.Position("c"); pos != 1 {
		t.Errorf("expected c at position 1, got %d", pos)
	}
}

func TestHandle_DeleteUntrackedChannelMessage(t *testing.T) {
	e, p, sink := newTestEngine(t)
	p.starterErr = errors.New("must not be called")

	e.Handle(context.Background(), platform.Notification{Kind: platform.MessageDelete, MessageID: "zzz", ChannelID: testChannel, Location: platform.LocationChannel})

	if len(sink.Events()) != 0 {
		t.Error("expected no events")
	}
}

func TestHandle_ThreadReplyOverridesAndReplays(t *testing.T) {
	e, p, sink := newTestEngine(t)
	ctx := context.Background()

	root := channelMsg("m1", aliceBlock, 0)
	e.Handle(ctx, created(root))

	// Replies are returned newest first; the engine must fold them oldest first.
	r1 := threadMsg("r1", "m1", "Request: from first reply\nDate: 2024-02-01", 1)
	r2 := threadMsg("r2", "m1", "Request: from second reply", 2)
	botReply := threadMsg("r3", "m1", "Request: from a bot", 3)
	botReply.Bot = true
	p.addThread(root, r2, botReply, r1)

	e.Handle(ctx, created(r1))

	evs := sink.Events()
	if len(evs) != 2 || evs[1].Type != EventUpdate {
		t.Fatalf("expected add then update, got %+v", evs)
	}
	got := evs[1].Request
	if got.ShortDescription != "from second reply" {
		t.Errorf("expected latest reply to win, got %q", got.ShortDescription)
	}
	if got.RequestDate == nil || got.RequestDate.Format("2006-01-02") != "2024-02-01" {
		t.Errorf("expected date from first reply, got %v", got.RequestDate)
	}
	if got.Author != "alice" || got.Extra != "Additional context here" {
		t.Errorf("expected root fields kept, got %+v", got)
	}
}

func TestHandle_ThreadReplayIndependentOfTrigger(t *testing.T) {
	run := func(trigger platform.Message) request.Request {
		e, p, _ := newTestEngine(t)
		ctx := context.Background()
		root := channelMsg("m1", aliceBlock, 0)
		e.Handle(ctx, created(root))
		p.addThread(root,
			threadMsg("r1", "m1", "Request: one", 1),
			threadMsg("r2", "m1", "Request: two", 2),
		)
		e.Handle(ctx, updated(trigger))
		got, _ := e.Find("m1")
		return got
	}

	a := run(threadMsg("r1", "m1", "Request: one", 1))
	b := run(threadMsg("r2", "m1", "Request: two", 2))
	if a.ShortDescription != b.ShortDescription || a.ShortDescription != "two" {
		t.Errorf("expected both triggers to converge on %q, got %q and %q", "two", a.ShortDescription, b.ShortDescription)
	}
}

func TestHandle_ThreadReplyUntrackedStarter(t *testing.T) {
	e, p, sink := newTestEngine(t)
	root := channelMsg("m1", "not a request", 0)
	p.addThread(root, threadMsg("r1", "m1", aliceBlock, 1))

	e.Handle(context.Background(), created(threadMsg("r1", "m1", aliceBlock, 1)))

	if len(sink.Events()) != 0 || e.Len() != 0 {
		t.Error("thread replies must not create requests")
	}
}

func TestHandle_ThreadFetchErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePlatform)
	}{
		{name: "starter", setup: func(p *fakePlatform) { p.starterErr = errFetch }},
		{name: "replies", setup: func(p *fakePlatform) { p.threadErr = errFetch }},
		{name: "no starter", setup: func(p *fakePlatform) { delete(p.starters, "m1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, p, sink := newTestEngine(t)
			ctx := context.Background()
			root := channelMsg("m1", aliceBlock, 0)
			e.Handle(ctx, created(root))
			p.addThread(root, threadMsg("r1", "m1", "Request: changed", 1))
			tt.setup(p)

			e.Handle(ctx, created(threadMsg("r1", "m1", "Request: changed", 1)))

			if n := len(sink.Events()); n != 1 {
				t.Errorf("expected only the add event, got %d", n)
			}
			got, _ := e.Find("m1")
			if got.ShortDescription != "Fix login bug" {
				t.Errorf("expected no mutation, got %q", got.ShortDescription)
			}
		})
	}
}

func TestHandle_ThreadReplyDeleted(t *testing.T) {
	e, p, sink := newTestEngine(t)
	ctx := context.Background()
	root := channelMsg("m1", aliceBlock, 0)
	e.Handle(ctx, created(root))
	p.addThread(root, threadMsg("r2", "m1", "Date: 2024-03-03", 2))

	e.Handle(ctx, platform.Notification{Kind: platform.MessageDelete, MessageID: "r1", ChannelID: "m1", Location: platform.LocationThread})

	evs := sink.Events()
	if len(evs) != 2 || evs[1].Type != EventUpdate {
		t.Fatalf("expected update after thread delete, got %+v", evs)
	}
	if evs[1].Request.RequestDate.Format("2006-01-02") != "2024-03-03" {
		t.Errorf("expected replayed date, got %v", evs[1].Request.RequestDate)
	}
}

func TestHandle_Reactions(t *testing.T) {
	e, _, sink := newTestEngine(t)
	ctx := context.Background()
	e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))

	isDone := func() bool {
		got, _ := e.Find("m1")
		return got.IsDone
	}

	e.Handle(ctx, platform.Notification{Kind: platform.ReactionAdd, MessageID: "m1", ChannelID: testChannel, Emoji: "👍"})
	if isDone() || len(sink.Events()) != 1 {
		t.Fatal("other emoji must be ignored")
	}

	e.Handle(ctx, platform.Notification{Kind: platform.ReactionAdd, MessageID: "m1", ChannelID: testChannel, Emoji: request.DoneReaction})
	evs := sink.Events()
	if !isDone() || len(evs) != 2 || evs[1].Type != EventUpdate || !evs[1].Request.IsDone {
		t.Fatalf("expected done update, got %+v", evs)
	}

	e.Handle(ctx, platform.Notification{Kind: platform.ReactionRemove, MessageID: "m1", ChannelID: testChannel, Emoji: request.DoneReaction, Remaining: 1})
	if !isDone() || len(sink.Events()) != 2 {
		t.Fatal("removal with copies left must not clear the flag")
	}

	e.Handle(ctx, platform.Notification{Kind: platform.ReactionRemove, MessageID: "m1", ChannelID: testChannel, Emoji: request.DoneReaction, Remaining: 0})
	evs = sink.Events()
	if isDone() || len(evs) != 3 || evs[2].Request.IsDone {
		t.Fatalf("expected flag cleared, got %+v", evs)
	}
}

func TestHandle_ReactionRemoveAll(t *testing.T) {
	tests := []struct {
		name string
		n    platform.Notification
		want int
	}{
		{name: "remove emoji", n: platform.Notification{Kind: platform.ReactionRemoveEmoji, MessageID: "m1", Emoji: request.DoneReaction}, want: 3},
		{name: "remove other emoji", n: platform.Notification{Kind: platform.ReactionRemoveEmoji, MessageID: "m1", Emoji: "👍"}, want: 2},
		{name: "remove all", n: platform.Notification{Kind: platform.ReactionRemoveAll, MessageID: "m1"}, want: 3},
		{name: "untracked", n: platform.Notification{Kind: platform.ReactionRemoveAll, MessageID: "zzz"}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, sink := newTestEngine(t)
			ctx := context.Background()
			e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))
			e.Handle(ctx, platform.Notification{Kind: platform.ReactionAdd, MessageID: "m1", Emoji: request.DoneReaction})

			e.Handle(ctx, tt.n)

			if n := len(sink.Events()); n != tt.want {
				t.Errorf("expected %d events, got %d", tt.want, n)
			}
			got, _ := e.Find("m1")
			if wantDone := tt.want == 2; got.IsDone != wantDone {
				t.Errorf("expected done=%v, got %v", wantDone, got.IsDone)
			}
		})
	}
}

func TestHandle_ReactionOnUntracked(t *testing.T) {
	e, _, sink := newTestEngine(t)
	e.Handle(context.Background(), platform.Notification{Kind: platform.ReactionAdd, MessageID: "nope", Emoji: request.DoneReaction})
	if len(sink.Events()) != 0 {
		t.Error("expected no events for untracked reaction")
	}
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Handle(context.Background(), created(channelMsg("m1", aliceBlock, 0)))

	snap := e.Snapshot()
	snap[0].Author = "mallory"
	*snap[0].RequestDate = time.Time{}

	got, _ := e.Find("m1")
	if got.Author != "alice" || got.RequestDate.IsZero() {
		t.Errorf("snapshot shares state with the engine: %+v", got)
	}
}

func TestMarkDone(t *testing.T) {
	e, p, _ := newTestEngine(t)
	ctx := context.Background()
	e.Handle(ctx, created(channelMsg("m1", aliceBlock, 0)))

	if err := e.MarkDone(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := e.MarkDone(ctx, "m1"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if len(p.reacts) != 1 {
		t.Fatalf("expected one reaction, got %d", len(p.reacts))
	}
	want := reactCall{channelID: testChannel, messageID: "m1", emoji: request.DoneReaction}
	if p.reacts[0] != want {
		t.Errorf("expected %+v, got %+v", want, p.reacts[0])
	}

	p.reactErr = errFetch
	if err := e.MarkDone(ctx, "m1"); !errors.Is(err, errFetch) {
		t.Errorf("expected wrapped platform error, got %v", err)
	}
}
