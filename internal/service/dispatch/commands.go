package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zhouzirui/sangha-bot/internal/model/schedule"
	"github.com/zhouzirui/sangha-bot/internal/transport"
)

const (
	listMin = 1
	listMax = 20
)

// handleAdd stores the remaining tokens as one prompt.
func (d *Dispatcher) handleAdd(ctx context.Context, msg transport.Message, args []string) error {
	if len(args) == 0 {
		return userErrorf("add needs the prompt text")
	}

	text := strings.Join(args, " ")
	if err := d.store.Add(ctx, msg.Ref, msg.Content, text); err != nil {
		return fmt.Errorf("failed to store prompt: %w", err)
	}

	d.reply(ctx, msg, fmt.Sprintf("Added prompt: %q", text))
	return nil
}

// handleRemove deletes a prompt by id. The reply does not reveal whether the
// id existed.
func (d *Dispatcher) handleRemove(ctx context.Context, msg transport.Message, args []string) error {
	if len(args) != 1 {
		return userErrorf("remove needs exactly one prompt id")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return userErrorf("couldn't parse %q as a prompt id", args[0])
	}

	if err := d.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove prompt %d: %w", id, err)
	}

	d.reply(ctx, msg, fmt.Sprintf("Removed prompt %d (if it existed!)", id))
	return nil
}

// handleList replies with the n most recent prompts in a preformatted block.
func (d *Dispatcher) handleList(ctx context.Context, msg transport.Message, args []string) error {
	if len(args) != 1 {
		return userErrorf("list needs exactly one count")
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return userErrorf("couldn't parse %q as a count", args[0])
	}
	if n < listMin || n > listMax {
		return userErrorf("count %d is out of range (must be between %d and %d)", n, listMin, listMax)
	}

	records, err := d.store.List(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to list prompts: %w", err)
	}

	if len(records) == 0 {
		d.reply(ctx, msg, "No prompts stored!")
		return nil
	}

	var b strings.Builder
	b.WriteString("```\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%d: %s\n", rec.ID, rec.Prompt)
	}
	b.WriteString("```")

	d.reply(ctx, msg, b.String())
	return nil
}

// handleSchedule reports, or replaces, the recurring delivery schedule.
func (d *Dispatcher) handleSchedule(ctx context.Context, msg transport.Message, args []string) error {
	switch {
	case len(args) == 0:
		d.reply(ctx, msg, d.engine.Describe())
		return nil
	case len(args) == 1:
		return userErrorf("schedule needs a [months:days:seconds] frequency and a YYYY-MM-DD HH:MM:SS start time")
	}

	freq, err := schedule.ParseFrequency(args[0])
	if err != nil {
		return userError{reason: err.Error()}
	}

	nextDue, err := schedule.ParseDateTime(strings.Join(args[1:], " "))
	if err != nil {
		return userError{reason: err.Error()}
	}

	sched := schedule.Schedule{NextDue: nextDue, Freq: freq}
	d.engine.Set(sched, msg.Channel)

	d.reply(ctx, msg, fmt.Sprintf("Schedule set: %s", sched))
	return nil
}
