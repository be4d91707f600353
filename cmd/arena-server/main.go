package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/luxfi/log"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MikeLuu99/auction-arena/internal/arena"
	"github.com/MikeLuu99/auction-arena/internal/events"
	"github.com/MikeLuu99/auction-arena/internal/metrics"
	"github.com/MikeLuu99/auction-arena/internal/server"
	"github.com/MikeLuu99/auction-arena/internal/store"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

type gameFlags struct {
	roundLimit int
	budget     string
	winnerPays string
	timeout    time.Duration
	stopEarly  bool
}

func main() {
	// Parse command line arguments
	config, gf := parseFlags()

	// Show help and exit if requested
	if config.Help {
		flag.Usage()
		return
	}

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}
	applyEnv(config)

	level, err := log.ToLevel(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", config.LogLevel, err)
		os.Exit(2)
	}
	logger := log.NewTestLogger(level)

	game, err := buildGame(gf)
	if err != nil {
		logger.Error("Invalid game configuration", "error", err)
		os.Exit(2)
	}

	if err := run(config, game, logger); err != nil {
		logger.Error("Arena failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() (*models.Config, *gameFlags) {
	config := models.DefaultConfig()
	defaults := models.DefaultGameConfig()
	gf := &gameFlags{
		roundLimit: defaults.RoundLimit,
		budget:     defaults.StartingBudget.String(),
		winnerPays: defaults.WinnerPays.String(),
		timeout:    defaults.PerRoundTimeout,
	}

	flag.StringVar(&config.Addr, "addr", "", "Listen address (default: 127.0.0.1:4040 or ARENA_ADDR env var)")
	flag.IntVar(&config.CohortSize, "cohort", config.CohortSize, "Participants per auction")
	flag.IntVar(&config.MinParticipants, "min", config.MinParticipants, "Smallest cohort started after the lobby timeout")
	flag.DurationVar(&config.LobbyTimeout, "lobby-timeout", config.LobbyTimeout, "How long the lobby waits for a full cohort")
	flag.IntVar(&config.NumAuctions, "auctions", config.NumAuctions, "Auctions per cohort (best of N)")
	flag.IntVar(&config.NumAuctions, "n", config.NumAuctions, "Auctions per cohort (shorthand)")
	flag.Int64Var(&config.Seed, "seed", config.Seed, "Random seed for painting orders and targets (0 = time based)")
	flag.BoolVar(&config.FixedPaintingOrder, "fixed-order", config.FixedPaintingOrder, "Keep one painting order for the whole series")
	flag.StringVar(&config.MongoURI, "mongo-uri", "", "MongoDB URI for the results archive (default: MONGO_URI env var)")
	flag.StringVar(&config.NATSURL, "nats", "", "NATS URL for round and final events (default: NATS_URL env var)")
	flag.StringVar(&config.MongoDatabase, "mongo-db", config.MongoDatabase, "MongoDB database for the results archive")
	flag.StringVar(&config.MongoCollection, "mongo-collection", config.MongoCollection, "MongoDB collection for the results archive")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level (debug, info, warn, error)")
	flag.BoolVar(&config.Help, "help", config.Help, "Show help information")
	flag.BoolVar(&config.Help, "h", config.Help, "Show help information (shorthand)")

	flag.IntVar(&gf.roundLimit, "rounds", gf.roundLimit, "Rounds per auction")
	flag.StringVar(&gf.budget, "budget", gf.budget, "Starting budget")
	flag.StringVar(&gf.winnerPays, "winner-pays", gf.winnerPays, "Winner pays rule (first or second)")
	flag.DurationVar(&gf.timeout, "timeout", gf.timeout, "Per round bid timeout")
	flag.BoolVar(&gf.stopEarly, "stop-on-complete", gf.stopEarly, "End an auction once someone completes a target collection")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Auction Arena - sealed-bid painting auctions between bots\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  ARENA_ADDR   listen address\n")
		fmt.Fprintf(os.Stderr, "  MONGO_URI    archive finished auctions in MongoDB\n")
		fmt.Fprintf(os.Stderr, "  NATS_URL     publish round and final events to NATS\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                               # cohorts of 4, one auction each\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -cohort 2 -n 50 -seed 7       # best of 50 between pairs\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -winner-pays second -rounds 50\n", os.Args[0])
	}

	flag.Parse()
	return config, gf
}

func applyEnv(config *models.Config) {
	if config.Addr == "" {
		config.Addr = os.Getenv("ARENA_ADDR")
		if config.Addr == "" {
			config.Addr = models.DefaultConfig().Addr
		}
	}
	if config.MongoURI == "" {
		config.MongoURI = os.Getenv("MONGO_URI")
	}
	if config.NATSURL == "" {
		config.NATSURL = os.Getenv("NATS_URL")
	}
}

func buildGame(gf *gameFlags) (models.GameConfig, error) {
	game := models.DefaultGameConfig()
	game.RoundLimit = gf.roundLimit
	game.PerRoundTimeout = gf.timeout
	game.StopOnCompleteCollection = gf.stopEarly

	budget, err := decimal.NewFromString(gf.budget)
	if err != nil {
		return game, models.NewConfigError("invalid budget %q", gf.budget)
	}
	game.StartingBudget = budget

	rule, err := models.ParseWinnerPaysRule(gf.winnerPays)
	if err != nil {
		return game, err
	}
	game.WinnerPays = rule
	return game, nil
}

func run(config *models.Config, game models.GameConfig, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bind first so that a busy address fails before anything else starts
	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Addr, err)
	}

	arenaMetrics := metrics.NewArenaMetrics("arena", logger)
	go arenaMetrics.CollectSystemMetrics(ctx)

	opts := arena.Options{
		Config:  config,
		Game:    game,
		Logger:  logger,
		Metrics: arenaMetrics,
	}

	if config.MongoURI != "" {
		mongoStore, disconnect, err := connectMongo(ctx, config)
		if err != nil {
			listener.Close()
			return err
		}
		defer disconnect()
		opts.Store = mongoStore
		logger.Info("Archiving auctions in MongoDB", "database", config.MongoDatabase, "collection", config.MongoCollection)
	}

	if config.NATSURL != "" {
		publisher, err := events.NewNATSPublisher(config.NATSURL, logger)
		if err != nil {
			listener.Close()
			return err
		}
		defer publisher.Close()
		opts.Events = publisher
	}

	a, err := arena.New(opts)
	if err != nil {
		listener.Close()
		return err
	}

	httpServer := &http.Server{
		Handler:           server.NewServer(a, arenaMetrics.Handler(), logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server running", "addr", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	arenaDone := make(chan error, 1)
	go func() { arenaDone <- a.Run(ctx) }()

	// Wait for either a server failure or interrupt signal
	var failure error
	select {
	case err := <-serveErr:
		failure = err
		stop()
	case <-ctx.Done():
		logger.Info("Interrupt received. Shutting down...")
	}

	// Running auctions are cancelled and archived before the arena returns
	if err := <-arenaDone; err != nil {
		logger.Warn("Arena stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server gracefully stopped")
	}

	printStandings(a.Standings())
	return failure
}

func connectMongo(ctx context.Context, config *models.Config) (store.AuctionStore, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(ctx)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("failed to reach MongoDB: %w", err)
	}

	mongoStore := store.NewMongoAuctionStore(client, config.MongoDatabase, config.MongoCollection)
	if err := mongoStore.EnsureIndexes(connectCtx); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return mongoStore, disconnect, nil
}

func printStandings(standings []models.PlayerStats) {
	if len(standings) == 0 {
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("ARENA STANDINGS")
	fmt.Println(strings.Repeat("=", 70))
	for _, stats := range standings {
		fmt.Printf("%-25s | Auctions: %3d | Wins: %3d | Win Rate: %5.1f%% | Avg Budget: %.2f\n",
			stats.Name, stats.TotalAuctions, stats.Wins, stats.WinRate, stats.AvgBudget)
	}
	fmt.Println(strings.Repeat("=", 70))
}
