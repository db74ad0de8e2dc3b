package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyhub/dashboard-api/cmd/statsctl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "statsctl",
		Short: "Operations tool for the dashboard stats service",
		Long:  "CLI tool for inspecting cached snapshots, forcing refreshes, and testing connectivity",
	}

	rootCmd.AddCommand(commands.NewCacheCmd())
	rootCmd.AddCommand(commands.NewRefreshCmd())
	rootCmd.AddCommand(commands.NewTestCmd())
	rootCmd.AddCommand(commands.NewPublishCmd())
	rootCmd.AddCommand(commands.NewGCCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
