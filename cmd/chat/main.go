package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-app/runtime/workers"
	"chat-app/session"
	"chat-app/store"
	"chat-app/transport"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the session lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
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
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
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

	// 5. Join the room and supervise the event loop
	s := session.New(config.Username, config.Room, messages, bus, config.TypingQuietInterval, log)
	if err := s.Join(ctx); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}
	defer s.Leave()

	// The supervisor runs in the background; shutdown goes through the signal
	// context, so nothing outside the Run goroutine touches the supervisor.
	sup := workers.NewSupervisor(log)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Add(s).Run(ctx)
	}()
	defer func() {
		stop()
		<-supDone
	}()

	r := newRenderer(config.Username)
	r.banner(config.Room)
	r.history(s.Messages())
	go r.follow(ctx, s)

	// 6. Input loop
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := dispatch(s, r, line); done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}

	log.Info("Program stopped cleanly")
	return nil
}

// dispatch executes one input line. Returns true when the user quits.
func dispatch(s *session.Session, r *renderer, line string) bool {
	switch {
	case line == "/quit":
		return true
	case line == "/who":
		r.roster(s.Roster())
	case line == "/clear":
		if err := s.Clear(); err != nil {
			r.warn(fmt.Sprintf("clear failed: %v", err))
		} else {
			r.reset()
		}
	case strings.HasPrefix(line, "/msg "):
		recipient, body, ok := splitPrivate(line)
		if !ok {
			r.warn("usage: /msg <user> <text>")
			return false
		}
		s.Typing()
		if err := s.Send(recipient, body); err != nil {
			r.warn(fmt.Sprintf("send failed: %v", err))
		}
	case strings.HasPrefix(line, "/"):
		r.warn("commands: /msg <user> <text>, /who, /clear, /quit")
	default:
		s.Typing()
		if err := s.Send("", line); err != nil {
			r.warn(fmt.Sprintf("send failed: %v", err))
		}
	}
	return false
}

// splitPrivate parses "/msg <user> <text>".
func splitPrivate(line string) (recipient, body string, ok bool) {
	rest := strings.TrimPrefix(line, "/msg ")
	parts := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if lo.SomeBy(parts, func(p string) bool { return strings.TrimSpace(p) == "" }) {
		return "", "", false
	}
	return parts[0], parts[1], true
}
