package models

import "time"

// Config holds the arena server configuration
type Config struct {
	// Address the arena listens on
	Addr string

	// Number of participants that starts a cohort immediately
	CohortSize int

	// Smallest cohort started when the lobby timeout elapses
	MinParticipants int

	// How long the lobby waits for a full cohort
	LobbyTimeout time.Duration

	// Number of sequential auctions each cohort plays
	NumAuctions int

	// Seed for painting orders and target collections (0 = time based)
	Seed int64

	// Keep the painting order fixed across auctions of a series
	FixedPaintingOrder bool

	// MongoDB results archive (optional)
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// NATS event stream (optional)
	NATSURL string

	// Log level name understood by the logger
	LogLevel string

	// Show help
	Help bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:            "127.0.0.1:4040",
		CohortSize:      4,
		MinParticipants: 2,
		LobbyTimeout:    30 * time.Second,
		NumAuctions:     1,
		MongoDatabase:   "arena",
		MongoCollection: "auctions",
		LogLevel:        "info",
	}
}

// Validate checks the lobby settings
func (c *Config) Validate() error {
	switch {
	case c.CohortSize < 1:
		return NewConfigError("cohort size must be positive, got %d", c.CohortSize)
	case c.MinParticipants < 1 || c.MinParticipants > c.CohortSize:
		return NewConfigError("min participants must be in [1, %d], got %d", c.CohortSize, c.MinParticipants)
	case c.LobbyTimeout <= 0:
		return NewConfigError("lobby timeout must be positive, got %s", c.LobbyTimeout)
	case c.NumAuctions < 1:
		return NewConfigError("number of auctions must be positive, got %d", c.NumAuctions)
	}
	return nil
}

// ClientConfig holds the bot client configuration
type ClientConfig struct {
	// Arena address (host:port)
	Addr string

	// Display name sent to the arena
	Username string

	// Bot selector: a built-in name, exec:<path> or llm:<model>
	Bot string

	// Number of auctions to take part in before disconnecting
	NumAuctions int

	// Deadline for one bot decision (0 = no deadline). A bot that misses it
	// bids zero for the round.
	BotTimeout time.Duration

	// Directory receiving one telemetry CSV per auction (empty disables telemetry)
	TelemetryDir string

	// Wire encoding: json or cbor
	Encoding string

	// Log level name understood by the logger
	LogLevel string

	// Show help
	Help bool
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Addr:         "127.0.0.1:4040",
		Bot:          "value",
		NumAuctions:  50,
		BotTimeout:   9 * time.Second,
		TelemetryDir: "telemetry",
		Encoding:     "json",
		LogLevel:     "info",
	}
}
