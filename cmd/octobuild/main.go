// Command octobuild is a distributed build accelerator for C/C++ projects:
// it executes a DAG of compiler invocations in parallel, content-addresses
// their preprocessed output into a local cache, and can offload cache
// misses to a cluster of remote builders. It is the Go-idiomatic successor
// to octobuild's xgConsole, builder, and coordinator binaries, unified
// behind one verb-dispatching entry point the way
// _examples/distr1-distri/cmd/distri/distri.go dispatches "build", "builder",
// etc. from a single binary.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cristim/octobuild"
)

func main() {
	ctx, cancel := octobuild.InterruptibleContext()
	defer cancel()

	args := os.Args[1:]
	verb := "build"
	if len(args) > 0 && !octobuild.IsFlag(args[0]) {
		verb, args = args[0], args[1:]
	}

	var err error
	switch verb {
	case "build":
		var code int
		code, err = cmdBuild(ctx, args)
		if err == nil {
			if err := octobuild.RunAtExit(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(500)
			}
			os.Exit(code)
		}
	case "builder":
		err = cmdBuilder(ctx, args)
	case "coordinator":
		err = cmdCoordinator(ctx, args)
	default:
		err = fmt.Errorf("unknown command %q (want build, builder, or coordinator)", verb)
	}

	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCodeFor(err))
}

// exitCodeFor maps a fatal run error to a process exit code. Mirrors
// xgConsole.rs's main matching Err(e) to 500; 501 is reserved for an
// unknown internal result (the original's Ok(None)) and never arises here,
// since every error this function sees is a concrete Err, including
// ErrNoTasks ("no build task files found"), which is an ordinary input
// error like the rest. The success path with a task's own exit code is
// handled directly in the "build" case above, never through this function.
func exitCodeFor(err error) int {
	return 500
}

func usage(fset *flag.FlagSet, help string) func() {
	return func() {
		fmt.Fprint(os.Stderr, help)
		fmt.Fprintln(os.Stderr)
		fset.PrintDefaults()
	}
}
