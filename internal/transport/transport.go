package transport

import "context"

// Channel is one addressable chat destination the bot can write to.
type Channel interface {
	// ID identifies the channel on the chat platform.
	ID() string
	// Send posts text to the channel.
	Send(ctx context.Context, text string) error
}

// Message is one inbound chat event handed to the dispatcher.
type Message struct {
	// Ref is the platform's message identifier, kept as an audit trail on
	// stored prompts.
	Ref      string
	AuthorID string
	Content  string
	Channel  Channel
}

// Handler consumes inbound messages. Implementations must not panic; the
// transport treats a handler call as fire-and-forget.
type Handler func(ctx context.Context, msg Message)
