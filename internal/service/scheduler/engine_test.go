package scheduler_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/sangha-bot/internal/model/prompt"
	"github.com/zhouzirui/sangha-bot/internal/model/schedule"
	"github.com/zhouzirui/sangha-bot/internal/service/scheduler"
)

// fakeStore is an in-memory stand-in for the sqlite store.
type fakeStore struct {
	mu      sync.Mutex
	records []prompt.Record
	nextID  int64
}

func (f *fakeStore) Add(_ context.Context, ref, src, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.records = append(f.records, prompt.Record{
		ID: f.nextID, InsertedAt: time.Now().UTC(),
		MessageRef: ref, SourceContent: src, Prompt: text,
	})
	return nil
}

func (f *fakeStore) Remove(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) Pop(_ context.Context) (*prompt.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return nil, nil
	}
	rec := f.records[len(f.records)-1]
	f.records = f.records[:len(f.records)-1]
	return &rec, nil
}

func (f *fakeStore) List(_ context.Context, n int) ([]prompt.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]prompt.Record, 0, n)
	for i := len(f.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeChannel records every send and signals on a channel.
type fakeChannel struct {
	mu    sync.Mutex
	sends []string
	fired chan string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{fired: make(chan string, 16)}
}

func (c *fakeChannel) ID() string { return "chan-test" }

func (c *fakeChannel) Send(_ context.Context, text string) error {
	c.mu.Lock()
	c.sends = append(c.sends, text)
	c.mu.Unlock()
	c.fired <- text
	return nil
}

func (c *fakeChannel) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func waitForSend(t *testing.T, ch *fakeChannel) string {
	t.Helper()
	select {
	case text := <-ch.fired:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return ""
	}
}

func TestDueScheduleDeliversExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{}
	if err := store.Add(ctx, "ref", "src", "water the plants"); err != nil {
		t.Fatalf("Add err: %v", err)
	}

	now := time.Date(2025, time.January, 1, 0, 0, 1, 0, time.UTC)
	engine := scheduler.NewEngine(ctx, store, scheduler.Options{
		TickInterval: 10 * time.Millisecond,
		Now:          func() time.Time { return now },
	})
	defer engine.Stop()

	channel := newFakeChannel()
	engine.Set(schedule.Schedule{
		NextDue: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Freq:    schedule.Frequency{Days: 1},
	}, channel)

	text := waitForSend(t, channel)
	if !strings.Contains(text, "water the plants") {
		t.Fatalf("delivery missing prompt text: %q", text)
	}
	if !strings.Contains(text, "2025-01-02 00:00:00") {
		t.Fatalf("delivery missing next due time: %q", text)
	}

	current, ok := engine.Current()
	if !ok {
		t.Fatal("expected an active schedule")
	}
	want := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	if !current.NextDue.Equal(want) {
		t.Fatalf("next due: got %v want %v", current.NextDue, want)
	}

	// nextDue is now in the future, so further ticks must not deliver.
	time.Sleep(50 * time.Millisecond)
	if got := channel.sendCount(); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
	if store.len() != 0 {
		t.Fatalf("expected the prompt to be popped, %d left", store.len())
	}
}

func TestEmptyStoreDeliversPlaceholder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{}
	now := time.Date(2025, time.January, 1, 0, 0, 1, 0, time.UTC)
	engine := scheduler.NewEngine(ctx, store, scheduler.Options{
		TickInterval: 10 * time.Millisecond,
		Now:          func() time.Time { return now },
	})
	defer engine.Stop()

	channel := newFakeChannel()
	engine.Set(schedule.Schedule{
		NextDue: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Freq:    schedule.Frequency{Days: 1},
	}, channel)

	text := waitForSend(t, channel)
	if !strings.Contains(text, scheduler.EmptyStorePlaceholder) {
		t.Fatalf("expected placeholder delivery, got %q", text)
	}
}

func TestReplacementCancelsPreviousChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{}
	if err := store.Add(ctx, "ref", "src", "only once"); err != nil {
		t.Fatalf("Add err: %v", err)
	}

	now := time.Date(2025, time.January, 1, 0, 0, 1, 0, time.UTC)
	engine := scheduler.NewEngine(ctx, store, scheduler.Options{
		TickInterval: 50 * time.Millisecond,
		Now:          func() time.Time { return now },
	})
	defer engine.Stop()

	oldChannel := newFakeChannel()
	engine.Set(schedule.Schedule{
		NextDue: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Freq:    schedule.Frequency{Days: 1},
	}, oldChannel)

	// Replace before the first tick can fire.
	newChannel := newFakeChannel()
	engine.Set(schedule.Schedule{
		NextDue: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Freq:    schedule.Frequency{Days: 1},
	}, newChannel)

	text := waitForSend(t, newChannel)
	if !strings.Contains(text, "only once") {
		t.Fatalf("unexpected delivery: %q", text)
	}

	time.Sleep(120 * time.Millisecond)
	if got := oldChannel.sendCount(); got != 0 {
		t.Fatalf("cancelled chain still delivered %d times", got)
	}
	if got := newChannel.sendCount(); got != 1 {
		t.Fatalf("expected one delivery on the replacement, got %d", got)
	}
}

func TestDescribeWithoutSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := scheduler.NewEngine(ctx, &fakeStore{}, scheduler.Options{})
	if got := engine.Describe(); got != "No schedule set!" {
		t.Fatalf("unexpected Describe: %q", got)
	}
	if _, ok := engine.Current(); ok {
		t.Fatal("expected no active schedule")
	}
}
