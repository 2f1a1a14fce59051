package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ledger-service/internal/config"
	"ledger-service/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println("Ledger: No .env file found, relying on system env vars")
	}

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		log.Printf("🌍 Ledger HTTP server starting on %s", cfg.HTTPAddr)
		// Blocks until the context is cancelled and shutdown completes.
		server.NewLedgerHTTPServer(ctx, cfg)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("🛑 Ledger service shutting down gracefully...")
		cancel()
		<-done
	case <-done:
	}
}
