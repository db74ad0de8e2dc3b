package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/config"
)

// NewCacheCmd creates the cache command group
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached dashboard snapshots",
	}

	cmd.AddCommand(newCacheShowCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheShowCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cached snapshot for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user must be a valid UUID: %w", err)
			}

			store, err := openRedisStore()
			if err != nil {
				return err
			}
			defer closeStore(store)

			snap, err := store.Load(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to load snapshot: %w", err)
			}
			if snap == nil {
				fmt.Printf("No cached snapshot for user %s\n", userID)
				return nil
			}

			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	if err := cmd.MarkFlagRequired("user"); err != nil {
		panic(err)
	}

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var user string
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && user == "" {
				return fmt.Errorf("either --user or --all is required")
			}

			store, err := openRedisStore()
			if err != nil {
				return err
			}
			defer closeStore(store)

			ctx := context.Background()

			if all {
				if err := store.DeleteAll(ctx); err != nil {
					return fmt.Errorf("failed to clear snapshots: %w", err)
				}
				fmt.Println("✓ Cleared all cached snapshots")
				return nil
			}

			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user must be a valid UUID: %w", err)
			}
			if err := store.Delete(ctx, userID); err != nil {
				return fmt.Errorf("failed to clear snapshot: %w", err)
			}
			fmt.Printf("✓ Cleared cached snapshot for user %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID")
	cmd.Flags().BoolVar(&all, "all", false, "Clear snapshots for all users")

	return cmd
}

func openRedisStore() (*cache.RedisStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return store, nil
}

func closeStore(store *cache.RedisStore) {
	if err := store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close Redis connection: %v\n", err)
	}
}
