package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/builderrpc"
	"github.com/cristim/octobuild/internal/cache"
	"github.com/cristim/octobuild/internal/classify"
	"golang.org/x/xerrors"
)

// Compile drives the preprocess/compile split for one task through
// adapter. Grounded on
// _examples/original_source/src/vs/compiler.rs's preprocess/compile
// methods.
func Compile(ctx context.Context, a Adapter, task octobuild.BuildTask, c *cache.Cache, stats *cache.Stats, offload OffloadFunc) (octobuild.OutputInfo, error) {
	args, ct, err := a.ClassifyArgs(task)
	if err != nil {
		return octobuild.OutputInfo{}, err
	}
	tc := a.Toolchain()

	tmpDir, err := os.MkdirTemp("", "octobuild")
	if err != nil {
		return octobuild.OutputInfo{}, err
	}
	defer os.RemoveAll(tmpDir)

	// 1. Build the preprocess command; 2. fingerprint phase 1.
	preprocessOut := filepath.Join(tmpDir, "preprocessed.i")
	preprocessArgs := tc.BuildPreprocessArgs(args, ct, preprocessOut)

	h := sha256.New()
	h.Write([]byte{0})
	for _, arg := range preprocessArgs {
		h.Write([]byte(arg))
		h.Write([]byte{0})
	}

	// 3. Run the preprocessor.
	ppOut, err := runCommand(ctx, task, preprocessArgs[0], preprocessArgs[1:])
	if err != nil {
		return octobuild.OutputInfo{}, err
	}
	if !ppOut.Success() {
		return ppOut, xerrors.Errorf("%w: %s", octobuild.ErrPreprocessorFailed, ppOut.Stderr)
	}

	raw, err := os.ReadFile(preprocessOut)
	if err != nil {
		return octobuild.OutputInfo{}, xerrors.Errorf("reading preprocessed output: %w", err)
	}

	// 4. Post-filter the preprocessed text.
	filtered, err := tc.FilterPreprocessed(raw, ct)
	if err != nil {
		return octobuild.OutputInfo{}, xerrors.Errorf("%w: %v", octobuild.ErrPreprocessedUnparseable, err)
	}

	// 5. Fingerprint phase 2.
	h.Write(filtered)
	fingerprint := hex.EncodeToString(h.Sum(nil))

	// 6. Cache lookup; on miss, run the compile inside produce, remotely if
	// a builder is available, locally otherwise.
	remote := false
	bundle, hit, err := c.RunCached(fingerprint, func() (cache.Bundle, error) {
		if offload != nil {
			remoteArgs := remoteCompileArgs(tc, args, ct)
			if b, ok, oerr := offload(ctx, tc.FingerprintID(), remoteArgs, filtered); ok {
				remote = true
				return b, oerr
			}
		}
		return compileFiltered(ctx, tc, task, args, ct, tmpDir, filtered)
	})
	if hit {
		stats.RecordHit()
	} else {
		stats.RecordMiss()
		if remote {
			stats.RecordRemoteOffload()
		} else {
			stats.RecordLocalCompile()
		}
	}
	out := octobuild.OutputInfo{Stdout: bundle.Stdout, Stderr: bundle.Stderr, ExitCode: bundle.ExitCode}
	if err != nil {
		return out, err
	}
	if err := materialize(bundle, ct); err != nil {
		return octobuild.OutputInfo{}, err
	}
	return out, nil
}

// remoteCompileArgs renders the compile sub-invocation's argument list with
// local paths replaced by placeholder tokens, suitable for shipping to a
// builder that knows the same toolchain (matched by Toolchain.FingerprintID)
// but has its own filesystem layout. The program name is left off: the
// builder runs its own binary for the toolchain with these arguments.
func remoteCompileArgs(tc Toolchain, args []classify.Arg, ct CompilationTask) []string {
	shadow := ct
	shadow.OutputObject = builderrpc.RemoteOutputToken + filepath.Ext(ct.OutputObject)
	return tc.BuildCompileArgs(args, shadow, builderrpc.RemoteInputToken)[1:]
}

// compileFiltered runs the compile sub-invocation and packages its outputs
// into a Bundle for the cache to store on success (storing happens in the
// caller, cache.RunCached, only when this returns a nil error).
func compileFiltered(ctx context.Context, tc Toolchain, task octobuild.BuildTask, args []classify.Arg, ct CompilationTask, tmpDir string, filtered []byte) (cache.Bundle, error) {
	inputTemp := filepath.Join(tmpDir, "input.i")
	if err := os.WriteFile(inputTemp, filtered, 0o644); err != nil {
		return cache.Bundle{}, err
	}

	compileArgs := tc.BuildCompileArgs(args, ct, inputTemp)
	out, err := runCommand(ctx, task, compileArgs[0], compileArgs[1:])
	if err != nil {
		return cache.Bundle{}, err
	}
	if !out.Success() {
		return cache.Bundle{Stdout: out.Stdout, Stderr: out.Stderr, ExitCode: out.ExitCode},
			xerrors.Errorf("%w: exit %d", octobuild.ErrCompileFailed, out.IntExitCode())
	}

	outputs := map[string][]byte{}
	obj, err := os.ReadFile(ct.OutputObject)
	if err != nil {
		return cache.Bundle{}, xerrors.Errorf("reading compiled object %s: %w", ct.OutputObject, err)
	}
	outputs["object"] = obj
	if ct.OutputPrecompiled != "" {
		pch, err := os.ReadFile(ct.OutputPrecompiled)
		if err != nil {
			return cache.Bundle{}, xerrors.Errorf("reading precompiled header %s: %w", ct.OutputPrecompiled, err)
		}
		outputs["precompiled"] = pch
	}

	return cache.Bundle{Stdout: out.Stdout, Stderr: out.Stderr, ExitCode: out.ExitCode, Outputs: outputs}, nil
}

// materialize writes a cache hit's stored outputs back to their declared
// on-disk locations.
func materialize(b cache.Bundle, ct CompilationTask) error {
	if obj, ok := b.Outputs["object"]; ok {
		if err := os.MkdirAll(filepath.Dir(ct.OutputObject), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(ct.OutputObject, obj, 0o644); err != nil {
			return err
		}
	}
	if ct.OutputPrecompiled != "" {
		if pch, ok := b.Outputs["precompiled"]; ok {
			if err := os.WriteFile(ct.OutputPrecompiled, pch, 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}
