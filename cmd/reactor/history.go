package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded checkpoints, most recent first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Shutdown(5 * time.Second)

		entries, err := eng.History()
		if err != nil {
			return err
		}
		for _, e := range entries {
			printlnf("%s  %-20s  %s", e.CommitID, humanize.Time(e.Time), e.Message)
		}
		return nil
	},
}
