package main

import (
	"time"

	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview [path...]",
	Short: "Show how one or more files would classify, without applying anything.",
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
		for _, p := range eng.Preview(changes) {
			printlnf("%-40s %s", p.Path, p.Color.Kind)
			for _, reason := range p.Color.Conflicts {
				printlnf("  - %s", reason)
			}
		}
		return nil
	},
}
