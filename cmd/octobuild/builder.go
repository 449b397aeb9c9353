package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/builderrpc"
	"github.com/cristim/octobuild/internal/cache"
	"github.com/cristim/octobuild/internal/coordinator"
)

const builderHelp = `octobuild builder [-flags]

Runs a remote build server: accepts compile requests offloaded by
"octobuild build -coordinator=...", compiles them with a locally installed
toolchain, and heartbeats its address and toolchain list to a coordinator.
`

func cmdBuilder(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("builder", flag.ExitOnError)
	var (
		listenAddr     = fset.String("listen", "localhost:9042", "[host]:port to serve compile requests on")
		coordinatorURL = fset.String("coordinator", "", "base URL of the coordinator to heartbeat into; empty disables registration")
		toolchains     = fset.String("toolchains", "", "comma-separated id=binary pairs, e.g. clang=/usr/bin/clang,msvc=C:\\VS\\bin\\cl.exe")
		name           = fset.String("name", "", "human-readable name advertised to the coordinator")
		version        = fset.String("version", octobuild.Version, "builder version string advertised to the coordinator")
		heartbeat      = fset.Duration("heartbeat", 10*time.Second, "interval between coordinator heartbeats")
		maxParallel    = fset.Int("max_parallel", 4, "maximum concurrently running compiles")
		cacheDir       = fset.String("cache_dir", defaultCacheDir(), "directory for this builder's own compile cache")
		cacheMaxMB     = fset.Int64("cache_max_mb", 4096, "evict cache entries beyond this total size (MiB); 0 disables eviction")
	)
	fset.Usage = usage(fset, builderHelp)
	fset.Parse(args)

	bins, err := parseToolchains(*toolchains)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()

	c, err := cache.New(*cacheDir, *cacheMaxMB<<20)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	stats := &cache.Stats{}

	srv := &builderrpc.Server{Toolchains: bins, MaxConcurrent: *maxParallel, Cache: c, Stats: stats}

	if *coordinatorURL != "" {
		go heartbeatLoop(ctx, *coordinatorURL, ln.Addr().String(), *name, *version, bins, *heartbeat)
	}

	fmt.Printf("builder listening on %s, toolchains: %v\n", ln.Addr(), toolchainNames(bins))
	err = srv.Serve(ctx, ln)
	c.Cleanup()
	fmt.Println(stats.String())
	return err
}

func parseToolchains(spec string) (builderrpc.ToolchainBinary, error) {
	out := builderrpc.ToolchainBinary{}
	if spec == "" {
		return out, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, fmt.Errorf("invalid -toolchains entry %q, want id=binary", pair)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func toolchainNames(bins builderrpc.ToolchainBinary) []string {
	names := make([]string, 0, len(bins))
	for name := range bins {
		names = append(names, name)
	}
	return names
}

// heartbeatLoop registers this builder with the coordinator immediately and
// then on every tick, until ctx is cancelled. A failed heartbeat is logged
// and retried on the next tick rather than aborting the builder. An
// unreachable coordinator shouldn't stop the builder from serving requests
// a client already knows its address for.
func heartbeatLoop(ctx context.Context, coordinatorURL, endpoint, name, version string, bins builderrpc.ToolchainBinary, interval time.Duration) {
	info := coordinator.BuilderInfo{Endpoint: endpoint, Name: name, Version: version, Toolchains: toolchainNames(bins)}
	send := func() {
		if err := postUpdate(ctx, coordinatorURL, info); err != nil {
			fmt.Printf("heartbeat: %v\n", err)
		}
	}
	send()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

func postUpdate(ctx context.Context, coordinatorURL string, info coordinator.BuilderInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, coordinatorURL+coordinator.RPCUpdate, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned %d", resp.StatusCode)
	}
	return nil
}
