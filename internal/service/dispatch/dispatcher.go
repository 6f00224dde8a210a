package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/sangha-bot/internal/service/scheduler"
	promptstore "github.com/zhouzirui/sangha-bot/internal/store/prompt"
	"github.com/zhouzirui/sangha-bot/internal/transport"
)

// SelfRebuff is the fixed reply to messages authored by the bot itself.
const SelfRebuff = "Nice try, but I don't talk to myself!"

// userError is a command failure caused by the user's input. It is always
// recovered locally and surfaced as the uniform failure reply.
type userError struct {
	reason string
}

func (e userError) Error() string { return e.reason }

func userErrorf(format string, args ...any) error {
	return userError{reason: fmt.Sprintf(format, args...)}
}

// Dispatcher turns raw inbound chat messages into validated commands:
// self-check, prefix check, normalize, tokenize, route.
type Dispatcher struct {
	prefix string
	selfID func() string
	store  promptstore.Store
	engine *scheduler.Engine
}

// New wires a dispatcher over the prompt store and schedule engine. selfID is
// consulted per message because the transport learns the bot's identity only
// after connecting.
func New(prefix string, selfID func() string, store promptstore.Store, engine *scheduler.Engine) *Dispatcher {
	return &Dispatcher{
		// Normalization lowercases the content before the prefix is
		// stripped, so the configured prefix must be lowercase too.
		prefix: strings.ToLower(prefix),
		selfID: selfID,
		store:  store,
		engine: engine,
	}
}

// command is the closed set of things the bot can be asked to do. Routing is
// a total match over this set; an unknown name is the explicit no-match case.
type command int

const (
	cmdAdd command = iota
	cmdRemove
	cmdList
	cmdSchedule
)

func parseCommand(name string) (command, bool) {
	switch name {
	case "add":
		return cmdAdd, true
	case "remove":
		return cmdRemove, true
	case "list":
		return cmdList, true
	case "schedule":
		return cmdSchedule, true
	default:
		return 0, false
	}
}

// Handle processes one inbound message end to end. It never panics and never
// drops a directed message silently.
func (d *Dispatcher) Handle(ctx context.Context, msg transport.Message) {
	if self := d.selfID(); self != "" && msg.AuthorID == self {
		d.reply(ctx, msg, SelfRebuff)
		return
	}

	if !strings.HasPrefix(msg.Content, d.prefix) {
		// Not addressed to us at all.
		return
	}

	normalized := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(msg.Content), d.prefix))
	tokens := strings.Fields(normalized)

	if err := d.route(ctx, msg, tokens); err != nil {
		reason := "something went wrong handling that command"
		if uerr, ok := err.(userError); ok {
			reason = uerr.reason
		} else {
			log.Printf("[dispatch] command failed: %v", err)
		}
		d.reply(ctx, msg, fmt.Sprintf("Sorry, I didn't understand that! Reason: %s", reason))
	}
}

func (d *Dispatcher) route(ctx context.Context, msg transport.Message, tokens []string) error {
	if len(tokens) == 0 {
		return userErrorf("no command specified")
	}

	cmd, ok := parseCommand(tokens[0])
	if !ok {
		return userErrorf("unknown command")
	}

	args := tokens[1:]
	switch cmd {
	case cmdAdd:
		return d.handleAdd(ctx, msg, args)
	case cmdRemove:
		return d.handleRemove(ctx, msg, args)
	case cmdList:
		return d.handleList(ctx, msg, args)
	case cmdSchedule:
		return d.handleSchedule(ctx, msg, args)
	default:
		// parseCommand only emits the four commands above.
		return userErrorf("unknown command")
	}
}

func (d *Dispatcher) reply(ctx context.Context, msg transport.Message, text string) {
	if err := msg.Channel.Send(ctx, text); err != nil {
		log.Printf("[dispatch] failed to reply: %v", err)
	}
}
