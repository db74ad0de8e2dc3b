package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/config"
	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/feed"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to Postgres, Redis, and RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// Postgres
			fmt.Println("Testing Postgres connection...")
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}
			fmt.Println("✓ Postgres is reachable")

			// Redis
			fmt.Println("\nTesting Redis connection...")
			store, err := cache.NewRedisStore(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			defer closeStore(store)
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping Redis: %w", err)
			}
			fmt.Println("✓ Redis is reachable")

			// RabbitMQ
			fmt.Println("\nTesting RabbitMQ connection...")
			changeFeed, err := feed.NewRabbitMQFeed(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() {
				if err := changeFeed.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()
			if err := changeFeed.HealthCheck(ctx); err != nil {
				return fmt.Errorf("RabbitMQ health check failed: %w", err)
			}
			fmt.Println("✓ RabbitMQ is reachable and the change feed topology is declared")

			fmt.Println("\n✓ All connectivity tests passed")
			return nil
		},
	}

	return cmd
}
