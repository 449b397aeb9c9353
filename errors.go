package octobuild

import "golang.org/x/xerrors"

// Sentinel errors for the failure kinds the core raises. The infrastructure
// failures (ErrCacheCorrupt, ErrRemoteUnavailable) are recovered locally and
// never propagate past their package; the others propagate to a caller.
var (
	// ErrGraphCycle is returned when the dependency graph is not acyclic.
	ErrGraphCycle = xerrors.New("octobuild: build graph has a cycle")
	// ErrManifestInvalid is returned when the manifest parser collaborator
	// fails to produce a graph.
	ErrManifestInvalid = xerrors.New("octobuild: invalid manifest")
	// ErrNoTasks is returned when no manifest files were found.
	ErrNoTasks = xerrors.New("octobuild: no build task files found")
	// ErrPreprocessorFailed is returned when the preprocess sub-invocation
	// exits non-zero.
	ErrPreprocessorFailed = xerrors.New("octobuild: preprocessor failed")
	// ErrPreprocessedUnparseable is returned when the post-filter cannot
	// parse the preprocessor's output.
	ErrPreprocessedUnparseable = xerrors.New("octobuild: preprocessed output unparseable")
	// ErrCompileFailed is returned when the compile sub-invocation exits
	// non-zero.
	ErrCompileFailed = xerrors.New("octobuild: compile failed")
	// ErrCacheCorrupt marks a cache entry that failed its integrity check;
	// handled locally as a miss, never propagated past package cache.
	ErrCacheCorrupt = xerrors.New("octobuild: cache entry corrupt")
	// ErrRemoteUnavailable marks a builder RPC transport failure; handled
	// locally as a fallback to local compile, never propagated past package
	// builderrpc. A builder-returned Error response is handled the same way:
	// Client.Offload reports ok=false for both, so a remote failure of any
	// kind never aborts a task that can still be compiled locally.
	ErrRemoteUnavailable = xerrors.New("octobuild: remote builder unavailable")
)
