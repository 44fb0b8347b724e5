package db

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"library-app-backend/loggers"
)

// MustPool creates and returns a new pgxpool.Pool, or exits if an error occurs.
func MustPool() *pgxpool.Pool {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		loggers.Logger.Fatal("DATABASE_URL environment variable is not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		loggers.Logger.Fatalf("Unable to parse DATABASE_URL: %v", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		loggers.Logger.Fatalf("Unable to create connection pool: %v", err)
	}

	// Ping the database to verify the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		loggers.Logger.Fatalf("Could not ping database: %v", err)
	}

	loggers.Logger.Info("Successfully connected to PostgreSQL database")
	return pool
}

// MustRedis creates the redis client used for the access-token revocation
// list and the paid-status cache, or exits if the server is unreachable.
func MustRedis() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		loggers.Logger.Fatalf("Could not ping redis at %s: %v", addr, err)
	}

	loggers.Logger.Info("Successfully connected to redis")
	return rdb
}
