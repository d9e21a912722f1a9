package main

import (
	"time"

	"github.com/spf13/cobra"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <commit-id>",
	Short: "Restore the path-to-head index to a previously recorded checkpoint.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Shutdown(5 * time.Second)

		heads, err := eng.Checkout(args[0])
		if err != nil {
			return err
		}
		printlnf("restored %d path(s) to %s", len(heads), args[0])
		return nil
	},
}
