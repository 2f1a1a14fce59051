package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbConnectRetries = 5
	dbConnectTimeout = 5 * time.Second
)

// ConnectDB opens the ledger database pool, retrying with exponential
// backoff so the service survives a database that is still booting.
func ConnectDB(ctx context.Context) (*pgxpool.Pool, error) {
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	poolCfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 50
	poolCfg.MinConns = 10
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	delay := 2 * time.Second
	var lastErr error

	for attempt := 1; attempt <= dbConnectRetries; attempt++ {
		log.Printf("[DB] Attempt %d/%d: connecting to ledger database...", attempt, dbConnectRetries)

		pool, connErr := connectOnce(ctx, poolCfg)
		if connErr == nil {
			log.Println("[DB] ✅ Connected successfully!")
			return pool, nil
		}
		lastErr = connErr
		log.Printf("[DB] ❌ Connection failed: %v", lastErr)

		if attempt < dbConnectRetries {
			log.Printf("[DB] Retrying in %s...", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", dbConnectRetries, lastErr)
}

func connectOnce(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	connCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return pool, nil
}
