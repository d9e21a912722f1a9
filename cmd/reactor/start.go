package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyraxred/reactor/internal/httpapi"
	"github.com/cyraxred/reactor/pkg/reactor"
)

var (
	startListenAddr string
	startNoHTTP     bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the engine in the foreground and block until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := eng.Initialize(ctx); err != nil {
			return err
		}

		forgeRoot := forgeRootFlag(cmd)
		if err := writePIDFile(forgeRoot); err != nil {
			return err
		}
		defer os.Remove(pidFilePath(forgeRoot))

		var srv *http.Server
		if !startNoHTTP {
			router := httpapi.NewRouter(statusAdapter{eng}, nil)
			srv = &http.Server{Addr: startListenAddr, Handler: router}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(os.Stderr, "reactor: http control plane stopped: %v\n", err)
				}
			}()
			printlnf("reactor: control plane listening on %s (backend=%s)", startListenAddr, eng.BackendName())
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		printlnf("reactor: shutting down")

		if srv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}
		return eng.Shutdown(10 * time.Second)
	},
}

func init() {
	startCmd.Flags().StringVar(&startListenAddr, "listen", ":8745", "control-plane HTTP listen address")
	startCmd.Flags().BoolVar(&startNoHTTP, "no-http", false, "do not start the HTTP control plane")
}

func pidFilePath(forgeRoot string) string {
	return filepath.Join(forgeRoot, "reactor.pid")
}

func writePIDFile(forgeRoot string) error {
	if err := os.MkdirAll(forgeRoot, 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(forgeRoot), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// statusAdapter satisfies httpapi.StatusProvider over an *reactor.Engine.
type statusAdapter struct{ e *reactor.Engine }

func (a statusAdapter) BackendName() string            { return a.e.BackendName() }
func (a statusAdapter) WatchedPaths() []string          { return a.e.WatchedPaths() }
func (a statusAdapter) Subscribe() httpapi.EventStream { return a.e.Subscribe() }
