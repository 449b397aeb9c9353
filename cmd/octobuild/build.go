package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/builderrpc"
	"github.com/cristim/octobuild/internal/cache"
	"github.com/cristim/octobuild/internal/compiler"
	"github.com/cristim/octobuild/internal/graph"
	"github.com/cristim/octobuild/internal/manifest"
	"github.com/cristim/octobuild/internal/scheduler"
	"github.com/cristim/octobuild/internal/worker"
	"golang.org/x/xerrors"
)

const buildHelp = `octobuild build [-flags] <manifest> [<manifest>...]

Runs the build tasks described by one or more XGE-style manifest files,
executing independent tasks in parallel and caching compiler invocations by
the content of their preprocessed input.
`

func cmdBuild(ctx context.Context, args []string) (int, error) {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		jobs        = fset.Int("j", runtime.NumCPU(), "number of build tasks to run in parallel")
		cacheDir    = fset.String("cache_dir", defaultCacheDir(), "directory for the content-addressed compile cache")
		cacheMaxMB  = fset.Int64("cache_max_mb", 4096, "evict cache entries beyond this total size (MiB); 0 disables eviction")
		coordinator = fset.String("coordinator", "", "base URL of a coordinator to offload cache misses to; empty disables cluster offload")
	)
	fset.Usage = usage(fset, buildHelp)
	fset.Parse(args)

	var files []string
	for _, arg := range fset.Args() {
		// /Word and /Word=value tokens are tool flags, not manifest paths.
		if !octobuild.IsFlag(arg) {
			files = append(files, arg)
		}
	}
	if len(files) == 0 {
		return 0, octobuild.ErrNoTasks
	}

	g := graph.New()
	for _, path := range files {
		if err := parseManifestFile(g, path); err != nil {
			return 0, err
		}
	}

	c, err := cache.New(*cacheDir, *cacheMaxMB<<20)
	if err != nil {
		return 0, xerrors.Errorf("opening cache: %w", err)
	}
	stats := &cache.Stats{}

	dispatcher := &compiler.Dispatcher{
		Adapters: []compiler.Adapter{compiler.Msvc{}, compiler.Clang{}},
		Cache:    c,
		Stats:    stats,
	}
	if *coordinator != "" {
		client := &builderrpc.Client{CoordinatorURL: *coordinator}
		dispatcher.Offload = client.Offload
	}

	pool := worker.New(*jobs, g.NumNodes(), dispatcher)
	code, err := scheduler.Execute(ctx, g, pool, buildLogger(), os.Stdout, os.Stderr)
	c.Cleanup()
	fmt.Println(stats.String())
	return code, err
}

func parseManifestFile(g *graph.Graph, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("%w: %v", octobuild.ErrManifestInvalid, err)
	}
	defer f.Close()
	return manifest.Parse(f, g)
}

func buildLogger() *log.Logger {
	return log.New(os.Stdout, "", 0)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".octobuild-cache"
	}
	return dir + "/octobuild"
}
