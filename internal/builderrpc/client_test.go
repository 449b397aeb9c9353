package builderrpc

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cristim/octobuild/internal/coordinator"
)

func TestClientOffloadNoBuilders(t *testing.T) {
	reg := coordinator.NewRegistry(time.Minute)
	srv := httptest.NewServer(reg.Router())
	defer srv.Close()

	c := &Client{CoordinatorURL: srv.URL}
	_, ok, err := c.Offload(context.Background(), "clang", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false when no builders are registered")
	}
}

func TestClientOffloadCoordinatorUnreachable(t *testing.T) {
	c := &Client{CoordinatorURL: "http://127.0.0.1:1"}
	_, ok, err := c.Offload(context.Background(), "clang", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false when the coordinator is unreachable")
	}
}

func TestClientOffloadSuccess(t *testing.T) {
	reg := coordinator.NewRegistry(time.Minute)
	coordSrv := httptest.NewServer(reg.Router())
	defer coordSrv.Close()

	bin := fakeCompilerScript(t)
	builderSrv := &Server{Toolchains: ToolchainBinary{"clang": "/bin/sh"}}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go builderSrv.Serve(ctx, ln)

	reg.Update(coordinator.BuilderInfo{Endpoint: ln.Addr().String(), Toolchains: []string{"clang"}})

	c := &Client{CoordinatorURL: coordSrv.URL}
	args := []string{bin, "-o", RemoteOutputToken + ".o", RemoteInputToken}
	_, ok, err := c.Offload(context.Background(), "clang", args, []byte("source bytes"))
	if !ok {
		t.Fatalf("expected ok=true (builder reachable), err=%v", err)
	}
}

// TestClientOffloadRemoteCompileErrorFallsBackLocally exercises a builder
// that is reachable but rejects the compile (unknown toolchain): the
// client must report ok=false, the same signal as an unreachable builder,
// so the caller falls back to a local compile instead of aborting.
func TestClientOffloadRemoteCompileErrorFallsBackLocally(t *testing.T) {
	reg := coordinator.NewRegistry(time.Minute)
	coordSrv := httptest.NewServer(reg.Router())
	defer coordSrv.Close()

	builderSrv := &Server{Toolchains: ToolchainBinary{}} // no toolchains installed
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go builderSrv.Serve(ctx, ln)

	reg.Update(coordinator.BuilderInfo{Endpoint: ln.Addr().String(), Toolchains: []string{"clang"}})

	c := &Client{CoordinatorURL: coordSrv.URL}
	_, ok, err := c.Offload(context.Background(), "clang", []string{"/bin/echo"}, nil)
	if ok {
		t.Fatal("expected ok=false when the builder rejects the compile")
	}
	if err != nil {
		t.Fatalf("expected nil error alongside ok=false, got %v", err)
	}
}
