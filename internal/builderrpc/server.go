package builderrpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/cache"
	"golang.org/x/sync/errgroup"
)

// ToolchainBinary maps a Toolchain.FingerprintID (e.g. "msvc", "clang") to
// the local binary invoked to compile for it. A server only advertises the
// toolchains it has an entry for.
type ToolchainBinary map[string]string

// Server accepts cluster compile requests and runs them locally.
// Grounded on _examples/distr1-distri/cmd/distri/builder.go's buildsrv: a
// net.Listen loop, one goroutine per accepted connection, bounded work.
// The gRPC service definition is replaced by wire.go's hand-rolled framing
// since no generated code exists in the pack (see DESIGN.md).
type Server struct {
	Toolchains ToolchainBinary
	Logger     *log.Logger
	// Cache, when non-nil, is consulted with a fingerprint over the incoming
	// request before running the toolchain, and populated on a miss. Builders
	// serving the same compile for more than one client skip the recompile;
	// nil disables this and always compiles.
	Cache *cache.Cache
	Stats *cache.Stats
	// MaxConcurrent bounds simultaneously running compiles; values below 1
	// are treated as 1.
	MaxConcurrent int
}

func (s *Server) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	sem := make(chan struct{}, maxInt(s.MaxConcurrent, 1))
	var eg errgroup.Group

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			if err := s.handle(ctx, conn); err != nil {
				s.logger().Printf("builderrpc: %v", err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	req, err := ReadRequest(newBufReader(conn))
	if err != nil {
		return err
	}

	resp := s.compile(ctx, req)
	return WriteResponse(conn, resp)
}

func (s *Server) compile(ctx context.Context, req CompileRequest) CompileResponse {
	binary, ok := s.Toolchains[req.Toolchain]
	if !ok {
		return CompileResponse{Ok: false, ErrMsg: "toolchain " + req.Toolchain + " not installed on this builder"}
	}

	if s.Cache == nil {
		return s.run(ctx, binary, req)
	}

	b, hit, err := s.Cache.RunCached(requestFingerprint(req), func() (cache.Bundle, error) {
		resp := s.run(ctx, binary, req)
		if !resp.Ok {
			return cache.Bundle{}, errResponse{resp}
		}
		return cache.Bundle{Stdout: resp.Output.Stdout, ExitCode: resp.Output.ExitCode, Outputs: map[string][]byte{"object": resp.Content}}, nil
	})
	if s.Stats != nil {
		if hit {
			s.Stats.RecordHit()
		} else {
			s.Stats.RecordMiss()
		}
	}
	if err != nil {
		if er, ok := err.(errResponse); ok {
			return er.resp
		}
		return CompileResponse{Ok: false, ErrMsg: err.Error()}
	}
	return CompileResponse{Ok: true, Output: octobuild.OutputInfo{Stdout: b.Stdout, ExitCode: b.ExitCode}, Content: b.Outputs["object"]}
}

// errResponse lets a failed run's CompileResponse ride through
// cache.RunCached's error return without the cache ever storing it (a
// produce error is never inserted), so the caller can still report the
// original ErrMsg instead of a generic one.
type errResponse struct{ resp CompileResponse }

func (e errResponse) Error() string { return e.resp.ErrMsg }

// run executes the compile sub-invocation directly, bypassing the cache.
func (s *Server) run(ctx context.Context, binary string, req CompileRequest) CompileResponse {
	tmpDir, err := os.MkdirTemp("", "octobuild-builder")
	if err != nil {
		return CompileResponse{Ok: false, ErrMsg: err.Error()}
	}
	defer os.RemoveAll(tmpDir)

	input := filepath.Join(tmpDir, "input.i")
	if err := os.WriteFile(input, req.PreprocessedData, 0o644); err != nil {
		return CompileResponse{Ok: false, ErrMsg: err.Error()}
	}
	output := filepath.Join(tmpDir, "output.obj")

	args := substituteTokens(req.Args, input, output)

	cmd := exec.CommandContext(ctx, binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return CompileResponse{Ok: false, ErrMsg: strings.TrimSpace(string(out))}
	}

	obj, err := os.ReadFile(output)
	if err != nil {
		return CompileResponse{Ok: false, ErrMsg: "reading compiled output: " + err.Error()}
	}

	zero := 0
	return CompileResponse{
		Ok:      true,
		Output:  octobuild.OutputInfo{Stdout: out, ExitCode: &zero},
		Content: obj,
	}
}

// requestFingerprint hashes the toolchain, compile args, and preprocessed
// bytes a request carries, the same inputs that determine its compiled
// output, so two clients requesting the identical compile collapse onto one
// cache entry.
func requestFingerprint(req CompileRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Toolchain))
	h.Write([]byte{0})
	for _, a := range req.Args {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	h.Write(req.PreprocessedData)
	return hex.EncodeToString(h.Sum(nil))
}

// substituteTokens replaces the @@INPUT@@/@@OUTPUT@@ placeholders a client
// rendered its compile args with (see compiler.remoteCompileArgs) with this
// builder's own temp paths.
func substituteTokens(args []string, input, output string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch {
		case a == RemoteInputToken:
			out[i] = input
		case strings.Contains(a, RemoteOutputToken):
			// Keep a fused flag prefix such as /Fo; the token and the
			// extension after it become the builder's output path.
			out[i] = a[:strings.Index(a, RemoteOutputToken)] + output
		default:
			out[i] = a
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
