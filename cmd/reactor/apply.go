package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyraxred/reactor/internal/core"
	"github.com/cyraxred/reactor/internal/gate"
)

var (
	applyActor      string
	applyPreapprove bool
	applyForce      bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [path...]",
	Short: "Submit one or more files' current on-disk content as proposed changes.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Shutdown(5 * time.Second)

		changes, err := changesFromPaths(args)
		if err != nil {
			return err
		}

		ctx := context.Background()
		var decisions []gate.Decision
		switch {
		case applyForce:
			decisions, err = eng.ApplyChangesForce(ctx, changes, applyActor)
		case applyPreapprove:
			decisions, err = eng.ApplyChangesPreapproved(ctx, changes, applyActor)
		default:
			decisions, err = eng.ApplyChanges(ctx, changes, applyActor)
		}
		if err != nil {
			return err
		}
		printlnf("%+v", decisions)
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyActor, "actor", "cli", "actor id recorded on applied operations")
	applyCmd.Flags().BoolVar(&applyPreapprove, "preapproved", false, "skip explicit voting, trust the traffic classifier alone")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "attempt to bypass a Red veto (subject to the engine's unsafe-force policy)")
}

func changesFromPaths(paths []string) ([]core.FileChange, error) {
	changes := make([]core.FileChange, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, core.NewEngineError(core.CategoryFilesystem, "cli.apply", err)
		}
		changes = append(changes, core.FileChange{
			Path: p, Kind: core.Modified, Source: core.SourceEditor,
			Timestamp: time.Now(), Content: content,
		})
	}
	return changes, nil
}
