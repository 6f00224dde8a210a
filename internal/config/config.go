package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrTokenMissing means the chat-platform auth token is absent. It is fatal
// at startup, before any component is constructed.
var ErrTokenMissing = errors.New("BOT_TOKEN is not set")

// Config aggregates everything the bot process needs.
type Config struct {
	Bot       BotConfig
	Store     StoreConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	bot, err := loadBotConfig()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	sched, err := loadSchedulerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Bot:       bot,
		Store:     loadStoreConfig(),
		Server:    server,
		Scheduler: sched,
	}, nil
}

// BotConfig describes the chat-platform connection and command surface.
type BotConfig struct {
	Token      string
	GatewayURL string
	Prefix     string
}

func loadBotConfig() (BotConfig, error) {
	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		return BotConfig{}, ErrTokenMissing
	}

	return BotConfig{
		Token:      token,
		GatewayURL: getEnvOrDefault("GATEWAY_URL", "wss://gateway.sangha.chat/ws"),
		Prefix:     getEnvOrDefault("COMMAND_PREFIX", "!sangha"),
	}, nil
}

// StoreConfig describes where the prompt database lives.
type StoreConfig struct {
	Path string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{Path: getEnvOrDefault("SANGHA_DB_PATH", "sangha.db")}
}

// ServerConfig describes the ops HTTP surface.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// SchedulerConfig tunes the delivery tick.
type SchedulerConfig struct {
	TickInterval time.Duration
}

func loadSchedulerConfig() (SchedulerConfig, error) {
	seconds, err := parseOptionalIntEnv("TICK_INTERVAL_SECONDS")
	if err != nil {
		return SchedulerConfig{}, err
	}

	cfg := SchedulerConfig{}
	if seconds != nil {
		if *seconds < 1 {
			return SchedulerConfig{}, fmt.Errorf("TICK_INTERVAL_SECONDS must be at least 1, got %d", *seconds)
		}
		cfg.TickInterval = time.Duration(*seconds) * time.Second
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
