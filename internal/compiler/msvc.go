package compiler

import (
	"path/filepath"
	"strings"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/classify"
	"golang.org/x/xerrors"
)

// msvcTable mirrors _examples/original_source/src/vs/compiler.rs's Arg
// match arms: which of cl.exe's flags are Preprocessor/Compiler/Shared.
var msvcTable = classify.Table{
	"nologo": {Scope: classify.Shared},
	"D":      {Scope: classify.Shared, TakesValue: true},
	"I":      {Scope: classify.Shared, TakesValue: true},
	"U":      {Scope: classify.Shared, TakesValue: true},
	"FI":     {Scope: classify.Shared, TakesValue: true},
	"Fo":     {Scope: classify.Ignore, TakesValue: true}, // re-synthesized below
	"Fp":     {Scope: classify.Ignore, TakesValue: true},
	"Yc":     {Scope: classify.Ignore, TakesValue: true},
	"Yu":     {Scope: classify.Ignore, TakesValue: true},
	"c":      {Scope: classify.Ignore}, // re-added by BuildCompileArgs
	"P":      {Scope: classify.Ignore}, // re-added by BuildPreprocessArgs
	"E":      {Scope: classify.Ignore},
	"T":      {Scope: classify.Ignore, TakesValue: true}, // language selector, re-synthesized
}

// Msvc is the Microsoft cl.exe-family adapter.
type Msvc struct{}

func (Msvc) Name() string { return "msvc" }

func (Msvc) Matches(task octobuild.BuildTask) bool {
	base := strings.ToLower(filepath.Base(task.Exec))
	return base == "cl.exe" || base == "cl"
}

func (m Msvc) ClassifyArgs(task octobuild.BuildTask) ([]classify.Arg, CompilationTask, error) {
	expanded := octobuild.ExpandArgs(task.Args, envResolver)
	args := classify.Classify(expanded, "/", msvcTable)

	ct := CompilationTask{Language: "C"}
	for _, a := range args {
		switch {
		case a.Kind == classify.KindInput:
			ct.InputSource = a.Path
		case a.Kind == classify.KindParam && a.Name == "Fo":
			ct.OutputObject = a.Value
		case a.Kind == classify.KindParam && a.Name == "Fp":
			ct.InputPrecompiled = a.Value
		case a.Kind == classify.KindParam && a.Name == "Yc":
			ct.OutputPrecompiled = a.Value
			ct.MarkerPrecompiled = a.Value
		case a.Kind == classify.KindParam && a.Name == "Yu":
			ct.MarkerPrecompiled = a.Value
		}
	}
	if ct.InputSource == "" {
		return nil, CompilationTask{}, xerrors.New("msvc: no input source in command line")
	}
	if ct.OutputObject == "" {
		return nil, CompilationTask{}, xerrors.New("msvc: no /Fo output object in command line")
	}
	if strings.HasSuffix(strings.ToLower(ct.InputSource), ".c") {
		ct.Language = "C"
	} else {
		ct.Language = "P" // cl.exe's /TP, C++
	}
	ct.Args = args
	return args, ct, nil
}

func (Msvc) Toolchain() Toolchain { return msvcToolchain{} }

type msvcToolchain struct{}

func (msvcToolchain) FingerprintID() string { return "msvc" }

func (msvcToolchain) BuildPreprocessArgs(args []classify.Arg, ct CompilationTask, tempOut string) []string {
	out := []string{"cl.exe", "/nologo", "/T" + ct.Language, "/P", "/Fi" + tempOut}
	for _, a := range args {
		if !a.InPreprocess() {
			continue
		}
		out = append(out, renderArg("/", a))
	}
	out = append(out, ct.InputSource)
	return out
}

func (msvcToolchain) BuildCompileArgs(args []classify.Arg, ct CompilationTask, tempIn string) []string {
	out := []string{"cl.exe", "/nologo", "/T" + ct.Language, "/c", "/Fo" + ct.OutputObject}
	for _, a := range args {
		if !a.InCompile() {
			continue
		}
		out = append(out, renderArg("/", a))
	}
	if ct.InputPrecompiled != "" {
		out = append(out, "/Yu", "/Fp"+ct.InputPrecompiled)
	}
	if ct.OutputPrecompiled != "" {
		out = append(out, "/Yc")
	}
	out = append(out, tempIn)
	return out
}

// FilterPreprocessed strips the `#line N "path"` directives cl.exe's
// preprocessor emits (lineMarkerRE in common.go); they embed the absolute
// source path, which must not leak into the cache key.
func (msvcToolchain) FilterPreprocessed(raw []byte, ct CompilationTask) ([]byte, error) {
	return filterLineMarkers(raw, ct.MarkerPrecompiled)
}

// renderArg reconstructs the textual form of a classified argument for
// re-emission into a sub-invocation's argument list.
func renderArg(prefix string, a classify.Arg) string {
	switch a.Kind {
	case classify.KindFlag:
		return prefix + a.Name
	case classify.KindParam:
		return prefix + a.Name + a.Value
	case classify.KindInput, classify.KindOutput:
		return a.Path
	default:
		return ""
	}
}
