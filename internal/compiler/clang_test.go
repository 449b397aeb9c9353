package compiler

import (
	"testing"

	"github.com/cristim/octobuild"
)

func TestClangMatches(t *testing.T) {
	c := Clang{}
	if !c.Matches(octobuild.BuildTask{Exec: "/usr/bin/clang++"}) {
		t.Errorf("expected clang++ to match")
	}
	if !c.Matches(octobuild.BuildTask{Exec: "/usr/bin/gcc"}) {
		t.Errorf("expected gcc to match")
	}
	if c.Matches(octobuild.BuildTask{Exec: "cl.exe"}) {
		t.Errorf("expected cl.exe not to match clang adapter")
	}
}

func TestClangClassifyArgs(t *testing.T) {
	task := octobuild.BuildTask{
		Exec: "clang",
		Args: []string{"-DFOO=1", "-Iinclude", "-c", "-o", "test.o", "test.cpp"},
	}
	args, ct, err := Clang{}.ClassifyArgs(task)
	if err != nil {
		t.Fatal(err)
	}
	if ct.InputSource != "test.cpp" || ct.OutputObject != "test.o" {
		t.Errorf("got ct=%+v", ct)
	}
	if ct.Language != "c++" {
		t.Errorf("Language = %q, want c++", ct.Language)
	}
	if len(args) == 0 {
		t.Fatal("expected classified args")
	}
}

func TestClangBuildArgsRoundTrip(t *testing.T) {
	task := octobuild.BuildTask{Exec: "clang", Args: []string{"-DFOO=1", "-o", "test.o", "test.c"}}
	args, ct, err := Clang{}.ClassifyArgs(task)
	if err != nil {
		t.Fatal(err)
	}
	tc := Clang{}.Toolchain()

	pre := tc.BuildPreprocessArgs(args, ct, "/tmp/out.i")
	if pre[len(pre)-1] != "test.c" {
		t.Errorf("preprocess args should end with the input source, got %v", pre)
	}
	comp := tc.BuildCompileArgs(args, ct, "/tmp/in.i")
	if comp[len(comp)-1] != "/tmp/in.i" {
		t.Errorf("compile args should end with the temp input, got %v", comp)
	}
}
