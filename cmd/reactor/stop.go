package main

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyraxred/reactor/internal/core"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running reactor start instance to shut down gracefully.",
	RunE: func(cmd *cobra.Command, args []string) error {
		forgeRoot := forgeRootFlag(cmd)
		raw, err := os.ReadFile(pidFilePath(forgeRoot))
		if err != nil {
			return core.NewEngineError(core.CategoryFilesystem, "cli.stop", err,
				"is reactor start running against this --forge-root?")
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			return core.NewEngineError(core.CategoryIntegrity, "cli.stop", err)
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return core.NewEngineError(core.CategoryFilesystem, "cli.stop", err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return core.NewEngineError(core.CategoryFilesystem, "cli.stop", err)
		}
		printlnf("reactor: sent SIGTERM to pid %d", pid)
		return nil
	},
}
