package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cyraxred/reactor/internal/core"
	"github.com/cyraxred/reactor/internal/httpapi"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running reactor start instance's control plane.",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get("http://" + statusAddr + "/status")
		if err != nil {
			return core.NewEngineError(core.CategoryFilesystem, "cli.status", err,
				"is reactor start --listen "+statusAddr+" running?")
		}
		defer resp.Body.Close()

		var st httpapi.Status
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return core.NewEngineError(core.CategoryIntegrity, "cli.status", err)
		}
		t, _ := time.Parse(time.RFC3339, st.Time)
		printlnf("backend:       %s", st.Backend)
		printlnf("watched paths: %v", st.WatchedPaths)
		printlnf("reported at:   %s (%s)", st.Time, humanize.Time(t))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "listen", "localhost:8745", "control-plane HTTP address to query")
}
