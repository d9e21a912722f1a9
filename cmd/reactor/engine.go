package main

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/cyraxred/reactor/internal/config"
	"github.com/cyraxred/reactor/internal/core"
	"github.com/cyraxred/reactor/pkg/reactor"
)

// resolveConfigPath expands a leading "~" (grounded on the teacher's loadSSHIdentity, which
// expands "~" via the same github.com/mitchellh/go-homedir helper) and falls back to
// <forge-root>/config.toml when --config was not given.
func resolveConfigPath(explicit, forgeRoot string) (string, error) {
	if explicit != "" {
		return homedir.Expand(explicit)
	}
	candidate := filepath.Join(forgeRoot, "config.toml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", nil
}

func loadEngine(cmd *cobra.Command) (*reactor.Engine, error) {
	forgeRoot := forgeRootFlag(cmd)
	cfgPath, err := resolveConfigPath(configPathFlag, forgeRoot)
	if err != nil {
		return nil, core.NewEngineError(core.CategoryConfiguration, "cli.load_config", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := core.NewLogger()
	return reactor.New(cfg, forgeRoot, logger)
}
