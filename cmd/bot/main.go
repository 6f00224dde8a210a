package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/sangha-bot/internal/config"
	"github.com/zhouzirui/sangha-bot/internal/handler"
	"github.com/zhouzirui/sangha-bot/internal/service/dispatch"
	"github.com/zhouzirui/sangha-bot/internal/service/scheduler"
	promptstore "github.com/zhouzirui/sangha-bot/internal/store/prompt"
	"github.com/zhouzirui/sangha-bot/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if errors.Is(err, config.ErrTokenMissing) {
		log.Println("bot token not found, bailing!")
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := promptstore.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open prompt store: %v", err)
	}
	defer store.Close()

	engine := scheduler.NewEngine(ctx, store, scheduler.Options{
		TickInterval: cfg.Scheduler.TickInterval,
	})
	defer engine.Stop()

	// The dispatcher learns the bot's own identity lazily: the gateway only
	// knows it after the ready event.
	var gateway *transport.Gateway
	dispatcher := dispatch.New(cfg.Bot.Prefix, func() string { return gateway.SelfID() }, store, engine)
	gateway = transport.NewGateway(transport.GatewayConfig{
		URL:   cfg.Bot.GatewayURL,
		Token: cfg.Bot.Token,
	}, dispatcher.Handle)

	go func() {
		if err := gateway.Run(ctx); err != nil {
			log.Printf("gateway stopped: %v", err)
			stop()
		}
	}()

	router := handler.NewRouter(store, engine)
	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("sangha-bot ops server listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
