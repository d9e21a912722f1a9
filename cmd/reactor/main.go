// Command reactor is the CLI front-end named as an external collaborator in spec.md's
// Non-goals ("the core consumes or exposes" it, rather than the core implementing it). It is
// grounded on the teacher's cmd/hercules/root.go: a single cobra root command with
// init()-registered subcommands and pflag-bound options, plus the teacher's exit-on-error
// idiom in main() — generalized here into the exit-code taxonomy spec §6 requires (0 clean, 2
// configuration invalid, 3 I/O, 4 timeout, 5 shutdown-timeout, 1 otherwise).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cyraxred/reactor/internal/core"
	"github.com/cyraxred/reactor/internal/governor"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var shutdownErr *governor.ErrShutdownTimeout
	if errors.As(err, &shutdownErr) {
		return 5
	}
	var ee *core.EngineError
	if errors.As(err, &ee) {
		switch ee.Category {
		case core.CategoryConfiguration:
			return 2
		case core.CategoryFilesystem:
			return 3
		case core.CategoryTimeout:
			return 4
		}
	}
	return 1
}
