package compiler

import (
	"path/filepath"
	"strings"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/classify"
	"golang.org/x/xerrors"
)

// clangTable generalizes cl.exe's scope table to GNU/Clang's dash-prefixed
// flag shape: -D/-I/-U are Shared, -o/-include-pch are re-synthesized per
// sub-invocation, -E/-c are re-added by the toolchain.
var clangTable = classify.Table{
	"D":           {Scope: classify.Shared, TakesValue: true},
	"I":           {Scope: classify.Shared, TakesValue: true},
	"U":           {Scope: classify.Shared, TakesValue: true},
	"include":     {Scope: classify.Shared, TakesValue: true},
	"o":           {Scope: classify.Ignore, TakesValue: true},
	"x":           {Scope: classify.Ignore, TakesValue: true},
	"include-pch": {Scope: classify.Ignore, TakesValue: true},
	"emit-pch":    {Scope: classify.Ignore},
	"c":           {Scope: classify.Ignore},
	"E":           {Scope: classify.Ignore},
}

// Clang is the Clang/GCC-family adapter (GNU-style command line).
type Clang struct{}

func (Clang) Name() string { return "clang" }

func (Clang) Matches(task octobuild.BuildTask) bool {
	base := strings.ToLower(filepath.Base(task.Exec))
	return strings.Contains(base, "clang") || strings.Contains(base, "gcc") ||
		strings.HasSuffix(base, "g++") || strings.HasSuffix(base, "c++")
}

func (c Clang) ClassifyArgs(task octobuild.BuildTask) ([]classify.Arg, CompilationTask, error) {
	expanded := octobuild.ExpandArgs(task.Args, envResolver)
	args := classify.Classify(expanded, "-", clangTable)

	ct := CompilationTask{Language: "c"}
	for _, a := range args {
		switch {
		case a.Kind == classify.KindInput:
			ct.InputSource = a.Path
		case a.Kind == classify.KindParam && a.Name == "o":
			ct.OutputObject = a.Value
		case a.Kind == classify.KindParam && a.Name == "x":
			ct.Language = a.Value
		case a.Kind == classify.KindParam && a.Name == "include-pch":
			ct.InputPrecompiled = a.Value
			ct.MarkerPrecompiled = a.Value
		case a.Kind == classify.KindFlag && a.Name == "emit-pch":
			ct.OutputPrecompiled = ct.OutputObject
		}
	}
	if ct.InputSource == "" {
		return nil, CompilationTask{}, xerrors.New("clang: no input source in command line")
	}
	if ct.OutputObject == "" {
		return nil, CompilationTask{}, xerrors.New("clang: no -o output object in command line")
	}
	if ct.Language == "c" && isCxxSuffix(ct.InputSource) {
		ct.Language = "c++"
	}
	ct.Args = args
	return args, ct, nil
}

func (Clang) Toolchain() Toolchain { return clangToolchain{} }

func isCxxSuffix(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".cc", ".cpp", ".cxx", ".c++", ".hpp":
		return true
	default:
		return false
	}
}

type clangToolchain struct{}

func (clangToolchain) FingerprintID() string { return "clang" }

func (clangToolchain) BuildPreprocessArgs(args []classify.Arg, ct CompilationTask, tempOut string) []string {
	out := []string{"clang", "-x", ct.Language, "-E", "-o", tempOut}
	for _, a := range args {
		if !a.InPreprocess() {
			continue
		}
		out = append(out, renderArg("-", a))
	}
	out = append(out, ct.InputSource)
	return out
}

func (clangToolchain) BuildCompileArgs(args []classify.Arg, ct CompilationTask, tempIn string) []string {
	out := []string{"clang", "-x", ct.Language, "-c", "-o", ct.OutputObject}
	for _, a := range args {
		if !a.InCompile() {
			continue
		}
		out = append(out, renderArg("-", a))
	}
	if ct.InputPrecompiled != "" {
		out = append(out, "-include-pch", ct.InputPrecompiled)
	}
	out = append(out, tempIn)
	return out
}

func (clangToolchain) FilterPreprocessed(raw []byte, ct CompilationTask) ([]byte, error) {
	return filterLineMarkers(raw, ct.MarkerPrecompiled)
}
