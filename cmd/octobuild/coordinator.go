package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/cristim/octobuild/internal/coordinator"
)

const coordinatorHelp = `octobuild coordinator [-flags]

Runs the cluster registry: builders heartbeat their address and
toolchain list into it, and clients query it to pick a builder to offload a
cache miss to.
`

func cmdCoordinator(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("coordinator", flag.ExitOnError)
	var (
		listenAddr = fset.String("listen", "localhost:9043", "[host]:port to serve the registry on")
		heartbeat  = fset.Duration("heartbeat", 10*time.Second, "expected builder heartbeat interval; a builder silent for 3x this is dropped")
	)
	fset.Usage = usage(fset, coordinatorHelp)
	fset.Parse(args)

	registry := coordinator.NewRegistry(*heartbeat)
	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: registry.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("coordinator listening on %s\n", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
