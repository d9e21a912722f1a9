package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rootCmd is the base command when reactor is called without any subcommand.
var rootCmd = &cobra.Command{
	Use:   "reactor",
	Short: "Run and control the reactive build-orchestration engine.",
	Long: `reactor watches a repository for file changes, runs registered build/analysis tools
against them respecting a dependency graph, and gates every resulting edit through a three-way
safety classifier before it reaches disk. This binary is the external control surface over one
running engine instance: start/stop/status, apply/preview, and history/checkout for the
append-only operation log's time travel.`,
}

var configPathFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to config.toml (default: <forge-root>/config.toml)")
	rootCmd.PersistentFlags().String("forge-root", ".forge", "path to the engine's persisted state directory")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(configCmd)
}

func forgeRootFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("forge-root")
	return v
}

func printlnf(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
