package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/sangha-bot/internal/model/schedule"
	promptstore "github.com/zhouzirui/sangha-bot/internal/store/prompt"
	"github.com/zhouzirui/sangha-bot/internal/transport"
)

// EmptyStorePlaceholder is delivered when a tick fires with no prompts stored.
const EmptyStorePlaceholder = "No prompts left!"

// DefaultTickInterval is how often an active schedule checks whether it is due.
const DefaultTickInterval = 2 * time.Second

// Options tune the engine; zero values fall back to production defaults.
type Options struct {
	TickInterval time.Duration
	Now          func() time.Time
}

// Engine owns the single recurring-delivery schedule. Setting a new schedule
// atomically replaces the old one and cancels its tick chain, so at most one
// chain is ever live.
type Engine struct {
	base     context.Context
	store    promptstore.Store
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	current *active
}

// active is one schedule bound to its delivery channel and tick chain.
type active struct {
	sched   schedule.Schedule
	channel transport.Channel
	cancel  context.CancelFunc
}

// NewEngine builds an engine whose tick chains stop when base is cancelled.
func NewEngine(base context.Context, store promptstore.Store, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		base:     base,
		store:    store,
		interval: opts.TickInterval,
		now:      opts.Now,
	}
}

// Set installs a new schedule bound to channel, replacing and cancelling any
// previous one.
func (e *Engine) Set(sched schedule.Schedule, channel transport.Channel) {
	ctx, cancel := context.WithCancel(e.base)
	next := &active{sched: sched, channel: channel, cancel: cancel}

	e.mu.Lock()
	prev := e.current
	e.current = next
	e.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	log.Printf("[scheduler] schedule set: %s", sched)
	go e.runChain(ctx, next)
}

// Current returns a snapshot of the active schedule, if any.
func (e *Engine) Current() (schedule.Schedule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return schedule.Schedule{}, false
	}
	return e.current.sched, true
}

// Describe renders the active schedule for chat replies.
func (e *Engine) Describe() string {
	sched, ok := e.Current()
	if !ok {
		return "No schedule set!"
	}
	return sched.String()
}

// Stop cancels the active chain, if any. Used on shutdown.
func (e *Engine) Stop() {
	e.mu.Lock()
	prev := e.current
	e.current = nil
	e.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}

// runChain is the tick loop for one installed schedule. It exits as soon as
// the schedule is replaced (its context is cancelled) or the engine's base
// context ends.
func (e *Engine) runChain(ctx context.Context, a *active) {
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.tick(ctx, a)
			timer.Reset(e.interval)
		}
	}
}

// tick performs one due-check. The slot is re-read under the lock so a chain
// that lost a replacement race never delivers.
func (e *Engine) tick(ctx context.Context, a *active) {
	e.mu.Lock()
	if e.current != a || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}

	now := e.now().UTC()
	if now.Before(a.sched.NextDue) {
		e.mu.Unlock()
		return
	}

	text := EmptyStorePlaceholder
	rec, err := e.store.Pop(ctx)
	if err != nil {
		e.mu.Unlock()
		log.Printf("[scheduler] failed to pop prompt: %v", err)
		return
	}
	if rec != nil {
		text = rec.Prompt
	}

	a.sched.NextDue = a.sched.Freq.Advance(a.sched.NextDue)
	next := a.sched.NextDue
	channel := a.channel
	e.mu.Unlock()

	body := fmt.Sprintf("%s\n(next delivery at %s UTC)", text, next.UTC().Format(schedule.DateTimeLayout))
	if err := channel.Send(ctx, body); err != nil {
		log.Printf("[scheduler] failed to deliver prompt: %v", err)
	}
}
