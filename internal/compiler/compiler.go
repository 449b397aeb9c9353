// Package compiler implements the preprocess/compile split and a toolchain
// adapter capability set for dynamic dispatch across compiler families.
// Grounded on _examples/original_source/src/vs/compiler.rs (preprocess/
// compile methods, fingerprinting, run_cached) and
// _examples/original_source/src/bin/xgConsole.rs's ExecutorState.compilers
// first-match loop.
package compiler

import (
	"context"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/cache"
	"github.com/cristim/octobuild/internal/classify"
)

// CompilationTask is derived from classified argument records: the pieces
// the preprocess/compile split needs beyond the raw arg list.
type CompilationTask struct {
	Args              []classify.Arg
	Language          string
	InputSource       string
	InputPrecompiled  string // optional; "" means none
	OutputObject      string
	OutputPrecompiled string // optional; "" means none
	MarkerPrecompiled string // optional; "" means no precompiled-header split
}

// Toolchain captures what a compiler family needs to build its preprocess
// and compile sub-invocations and to normalize preprocessed output. Msvc and
// Clang implement this; new families plug in without touching split.go.
type Toolchain interface {
	// FingerprintID identifies this compiler binary + platform combination
	// for matching cluster compile requests to builders.
	FingerprintID() string
	// BuildPreprocessArgs returns the full argument list for the preprocess
	// sub-invocation: the Preprocessor/Shared-scoped args plus whatever
	// "preprocess to file, no logo" tokens this family needs, writing to
	// tempOut.
	BuildPreprocessArgs(args []classify.Arg, task CompilationTask, tempOut string) []string
	// BuildCompileArgs returns the full argument list for the compile
	// sub-invocation: Preprocessor/Compiler/Shared-scoped args plus
	// compile-only tokens (no-link, object output, language selector),
	// reading from tempIn instead of the original source.
	BuildCompileArgs(args []classify.Arg, task CompilationTask, tempIn string) []string
	// FilterPreprocessed normalizes the preprocessor's raw output: strips
	// line markers referencing absolute paths, and, when task has a
	// MarkerPrecompiled, splits at that marker to isolate the
	// compiler-relevant portion. An error means PreprocessedUnparseable.
	FilterPreprocessed(raw []byte, task CompilationTask) ([]byte, error)
}

// Adapter is the per-compiler-family capability set: recognize a command
// line, classify it, and run it through the split.
type Adapter interface {
	Name() string
	// Matches reports whether this adapter owns the given task's tool.
	Matches(task octobuild.BuildTask) bool
	// ClassifyArgs turns the task's raw args into argument records and a
	// derived CompilationTask.
	ClassifyArgs(task octobuild.BuildTask) ([]classify.Arg, CompilationTask, error)
	// Toolchain returns the toolchain used to build sub-invocations.
	Toolchain() Toolchain
}

// OffloadFunc attempts to run a compile sub-invocation on a remote cluster
// builder instead of locally. compileArgs is the forwarded argument list
// with the input/output paths replaced by the @@INPUT@@/@@OUTPUT@@ tokens
// (see remoteCompileArgs) since the paths are only meaningful on this
// machine. ok=false means no matching builder was reachable or the builder
// returned an error response; the caller falls back to a local compile.
type OffloadFunc func(ctx context.Context, toolchainID string, compileArgs []string, filtered []byte) (bundle cache.Bundle, ok bool, err error)

// Dispatcher selects the first matching Adapter for a task, or falls back
// to direct execution for non-compile tasks. It implements worker.Executor.
type Dispatcher struct {
	Adapters []Adapter
	Cache    *cache.Cache
	Stats    *cache.Stats
	Offload  OffloadFunc // optional; nil means compile locally only
}

// Execute runs task: through the matching compiler adapter's preprocess/
// compile split if one claims it, or directly otherwise.
func (d *Dispatcher) Execute(ctx context.Context, task octobuild.BuildTask) (octobuild.OutputInfo, error) {
	for _, a := range d.Adapters {
		if a.Matches(task) {
			return Compile(ctx, a, task, d.Cache, d.Stats, d.Offload)
		}
	}
	return runDirect(ctx, task)
}
