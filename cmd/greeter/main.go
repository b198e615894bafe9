package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chat-app/bot"
	"chat-app/runtime/workers"
	"chat-app/store"
	"chat-app/transport"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	repository, err := store.NewMessageRepository(db, log)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}
	defer func() { _ = repository.Close() }()

	// 3. Transport (NATS) & publishing store
	bus, err := transport.NewNATS(config.NatsURL, log)
	if err != nil {
		return fmt.Errorf("transport connection failed: %w", err)
	}
	defer bus.Close()

	messages := store.NewPublishingStore(repository, bus, log)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised polling loop
	runner := bot.NewRunner(messages, bot.NewGreeterResponder(), config.BotName, config.Room, config.PollInterval, log)

	sup := workers.NewSupervisor(log)
	sup.Add(runner).Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
