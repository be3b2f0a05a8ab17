package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chat-relay/auth"
	"chat-relay/broker"
	"chat-relay/gateway"
	"chat-relay/handlers"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/services"

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

// run initializes all components, manages the relay lifecycle, and centralizes
// error reporting, so 'defer' cleanups (database, bus drain) always execute
// before the process exits.
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
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Message bus
	nc, err := broker.Connect(log, config.NatsURL)
	if err != nil {
		return err
	}
	defer broker.Drain(log, nc)

	// 4. Core components
	registry := presence.NewRegistry()
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	conversationRepository := repositories.NewConversationRepository(db)
	userRepository := repositories.NewUserRepository(db)

	hub := gateway.NewHub(log, registry, config.ConnectionBufferSize)

	messageService := services.NewMessageService(log, messageRepository, conversationRepository, userRepository)
	readService := services.NewReadService(log, messageRepository)
	presenceService := services.NewPresenceService(log, registry, userRepository)

	// 5. Dispatch table & handlers
	server := broker.NewServer(log, nc, config.ExposeErrorDetail)
	handlers.New(log, messageService, readService, presenceService, hub).RegisterAll(server)

	// 6. Gateway
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	gw := gateway.New(log, hub, nc, tokens, fmt.Sprintf("%s:%d", config.Host, config.Port))

	// 7. Supervision
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		server,
		gw,
		workers.NewHealthMonitoringWorker(log, registry, config.MetricInterval),
	)

	// Blocks until the context is canceled and every worker stopped
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
