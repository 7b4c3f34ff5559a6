// Package pprof runs the debug HTTP server exposing profiling and metrics
// endpoints during a correlation run.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	httppprof "net/http/pprof"
	"time"
)

// StartDebugServer serves /debug/pprof/* and, when metricsHandler is not nil,
// /metrics on the given address until ctx is cancelled.
func StartDebugServer(ctx context.Context, addr string, metricsHandler http.Handler) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting debug server on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("could not listen on %s: %v\n", addr, err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down debug server on %s\n", addr)
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
