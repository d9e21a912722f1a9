// Package httpapi exposes a thin control-plane surface over one Engine: health, status, and a
// server-sent-events stream of published events, for external collaborators named in spec.md's
// Non-goals (CLI front-ends, editor plugins, dashboards) that would rather poll/stream over
// HTTP than link the in-process API directly. Routing is grounded on github.com/go-chi/chi/v5,
// the router the pack's jordigilh-kubernaut gateway tests exercise (chi.NewRouter +
// router.Use(middleware...) + router.Get(pattern, handler)).
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cyraxred/reactor/internal/core"
)

// StatusProvider is the narrow view of an Engine this package needs, so httpapi never imports
// pkg/reactor (which itself imports httpapi's sibling packages) and no import cycle forms.
type StatusProvider interface {
	BackendName() string
	WatchedPaths() []string
	Subscribe() EventStream
}

// EventStream is the narrow view of *eventbus.Subscription the /events handler streams from.
type EventStream interface {
	Events() <-chan interface{}
	Cancel()
}

// Status is the JSON body of GET /status.
type Status struct {
	Backend      string   `json:"backend"`
	WatchedPaths []string `json:"watched_paths"`
	Time         string   `json:"time"`
}

// NewRouter builds the control-plane router. logger is used only to report handler-level
// failures (an event that cannot be marshaled for the stream); it may be nil.
func NewRouter(provider StatusProvider, logger core.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st := Status{
			Backend:      provider.BackendName(),
			WatchedPaths: provider.WatchedPaths(),
			Time:         time.Now().UTC().Format(time.RFC3339),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		sub := provider.Subscribe()
		defer sub.Cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-sub.Events():
				if !open {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					if logger != nil {
						logger.Warnf("httpapi: failed to marshal event for stream: %v", err)
					}
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	})

	return r
}
