package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readDeadline   = 60 * time.Second
	pingInterval   = 54 * time.Second
	writeDeadline  = 10 * time.Second
	maxDialRetries = 5
)

// ErrNotConnected is returned by sends issued while the gateway has no live
// websocket connection.
var ErrNotConnected = errors.New("gateway not connected")

// GatewayConfig carries what the adapter needs to reach the chat platform.
type GatewayConfig struct {
	URL   string
	Token string
	// PingInterval overrides the keepalive cadence; zero means the default.
	PingInterval time.Duration
}

// Gateway is the production Chat Transport: a websocket client that dials the
// platform's gateway, identifies with the bot token, and feeds message events
// to a Handler. Outbound sends are serialized behind a write mutex because
// gorilla/websocket allows only one concurrent writer.
type Gateway struct {
	cfg       GatewayConfig
	handler   Handler
	sessionID string

	mu      sync.Mutex
	conn    *websocket.Conn
	selfID  string
	writeMu sync.Mutex
}

// NewGateway builds a Gateway; Run must be called to connect.
func NewGateway(cfg GatewayConfig, handler Handler) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingInterval
	}
	return &Gateway{
		cfg:       cfg,
		handler:   handler,
		sessionID: uuid.NewString(),
	}
}

// SelfID reports the bot's own author identity as announced by the gateway's
// ready event; empty until the first ready.
func (g *Gateway) SelfID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selfID
}

type gatewayEvent struct {
	Op        string `json:"op"`
	SelfID    string `json:"selfId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	AuthorID  string `json:"authorId,omitempty"`
	Content   string `json:"content,omitempty"`
}

type gatewayCommand struct {
	Op        string `json:"op"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Run connects and pumps events until ctx is cancelled, reconnecting with
// backoff after read failures.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		conn, err := g.dialWithRetry(ctx)
		if err != nil {
			return err
		}

		g.mu.Lock()
		g.conn = conn
		g.mu.Unlock()

		err = g.readLoop(ctx, conn)

		g.mu.Lock()
		g.conn = nil
		g.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[gateway] connection lost, reconnecting: %v", err)
	}
}

func (g *Gateway) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error

	for i := 0; i < maxDialRetries; i++ {
		conn, err := g.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		retryDelay := time.Duration(i+1) * time.Second
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect after %d retries, last error: %w", maxDialRetries, lastErr)
}

func (g *Gateway) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bot "+g.cfg.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, g.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway %s: %w", g.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	identify := gatewayCommand{Op: "identify", Token: g.cfg.Token, SessionID: g.sessionID}
	if err := conn.WriteJSON(identify); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to identify: %w", err)
	}

	log.Printf("[gateway] connected session=%s", g.sessionID)
	return conn, nil
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.pingLoop(pingCtx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			var event gatewayEvent
			if err := conn.ReadJSON(&event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[gateway] read error: %v", err)
				}
				return err
			}

			conn.SetReadDeadline(time.Now().Add(readDeadline))
			g.handleEvent(ctx, event)
		}
	}
}

func (g *Gateway) handleEvent(ctx context.Context, event gatewayEvent) {
	switch event.Op {
	case "ready":
		g.mu.Lock()
		g.selfID = event.SelfID
		g.mu.Unlock()
		log.Printf("[gateway] ready as %s", event.SelfID)
	case "message":
		ref := event.MessageID
		if ref == "" {
			ref = uuid.NewString()
		}
		msg := Message{
			Ref:      ref,
			AuthorID: event.AuthorID,
			Content:  event.Content,
			Channel:  &gatewayChannel{gateway: g, id: event.ChannelID},
		}
		// Handlers may block on storage; keep the read loop draining.
		go g.handler(ctx, msg)
	case "ping":
		// Server-side liveness probe on the application layer. Ignore.
	default:
		log.Printf("[gateway] unsupported event op: %s", event.Op)
	}
}

func (g *Gateway) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl is safe alongside the writes in send; a plain
			// WriteMessage here would race them and panic the process.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) send(channelID, text string) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	cmd := gatewayCommand{Op: "send", ChannelID: channelID, Content: text}
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to send to channel %s: %w", channelID, err)
	}
	return nil
}

// gatewayChannel binds a channel id back to its gateway connection.
type gatewayChannel struct {
	gateway *Gateway
	id      string
}

func (c *gatewayChannel) ID() string { return c.id }

func (c *gatewayChannel) Send(_ context.Context, text string) error {
	return c.gateway.send(c.id, text)
}
