package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/bot"
	"github.com/MikeLuu99/auction-arena/internal/client"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

func main() {
	// Parse command line arguments
	config := parseFlags()

	// Show help and exit if requested
	if config.Help {
		flag.Usage()
		return
	}

	// Load environment variables from .env file (OPENROUTER_API_KEY for llm bots)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}
	if config.Addr == "" {
		config.Addr = os.Getenv("ARENA_ADDR")
		if config.Addr == "" {
			config.Addr = models.DefaultClientConfig().Addr
		}
	}

	level, err := log.ToLevel(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", config.LogLevel, err)
		os.Exit(2)
	}
	logger := log.NewTestLogger(level)

	factory, err := bot.Lookup(config.Bot, logger)
	if err != nil {
		logger.Error("Invalid bot", "error", err)
		os.Exit(2)
	}

	c, err := client.New(config, factory, logger)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := c.Dial(ctx)
	if err != nil {
		logger.Error("Could not reach the arena", "error", err)
		os.Exit(1)
	}

	summary, err := c.Run(ctx, conn)
	printSummary(config.Username, summary)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("Interrupted")
	default:
		logger.Error("Client stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags() *models.ClientConfig {
	config := models.DefaultClientConfig()

	flag.StringVar(&config.Addr, "addr", "", "Arena address (default: 127.0.0.1:4040 or ARENA_ADDR env var)")
	flag.StringVar(&config.Username, "name", config.Username, "Display name")
	flag.StringVar(&config.Username, "u", config.Username, "Display name (shorthand)")
	flag.StringVar(&config.Bot, "bot", config.Bot, "Bot: "+strings.Join(bot.Names(), ", ")+", exec:<path> or llm:<model>")
	flag.IntVar(&config.NumAuctions, "auctions", config.NumAuctions, "Number of auctions to play")
	flag.IntVar(&config.NumAuctions, "n", config.NumAuctions, "Number of auctions to play (shorthand)")
	flag.DurationVar(&config.BotTimeout, "bot-timeout", config.BotTimeout, "Deadline for one bot decision, 0 disables it (keep it below the arena's round timeout)")
	flag.StringVar(&config.TelemetryDir, "telemetry", config.TelemetryDir, "Directory for per-auction CSV telemetry (empty disables it)")
	flag.StringVar(&config.Encoding, "encoding", config.Encoding, "Wire encoding (json or cbor)")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level (debug, info, warn, error)")
	flag.BoolVar(&config.Help, "help", config.Help, "Show help information")
	flag.BoolVar(&config.Help, "h", config.Help, "Show help information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Auction Arena client - plays auctions with a bot\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -name <display name> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -name alice -bot value -n 10\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -name bob -bot exec:./mybot.py -encoding cbor\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -name carol -bot llm:openai/gpt-4o-mini\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func printSummary(name string, summary client.Summary) {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("%s (participant %d)\n", name, summary.ParticipantID)
	fmt.Printf("Auctions: %d | Won: %d | Win Rate: %.1f%%\n", summary.Total, summary.Won, summary.WinRate()*100)
	if summary.Ignored > 0 {
		fmt.Printf("Ignored single-participant auctions: %d\n", summary.Ignored)
	}
	fmt.Println(strings.Repeat("=", 50))
}
