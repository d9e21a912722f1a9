package main

import (
	"github.com/spf13/cobra"

	"github.com/cyraxred/reactor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or validate engine configuration.",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a config.toml without starting the engine.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else if configPathFlag != "" {
			path = configPathFlag
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		printlnf("config ok: watch_paths=%v debounce=%dms concurrency=%d backend=%s",
			cfg.WatchPaths, cfg.DebounceMS, cfg.Concurrency, cfg.Backend)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
