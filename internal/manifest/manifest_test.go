package manifest

import (
	"strings"
	"testing"

	"github.com/cristim/octobuild/internal/graph"
)

const sampleManifest = `<?xml version="1.0"?>
<BuildSet>
  <Task Name="compile_a" Caption="Compile a.cpp" Tool="cl.exe" WorkingDir="C:\src" Params="/c /Foa.obj a.cpp" />
  <Task Name="compile_b" Caption="Compile b.cpp" Tool="cl.exe" WorkingDir="C:\src" Params="/c /Fob.obj b.cpp" />
  <Task Name="link" Caption="Link app.exe" Tool="link.exe" WorkingDir="C:\src" Params="a.obj b.obj" DependsOn="compile_a,compile_b" />
</BuildSet>
`

func TestParseBasic(t *testing.T) {
	g := graph.New()
	if err := Parse(strings.NewReader(sampleManifest), g); err != nil {
		t.Fatal(err)
	}
	if g.NumNodes() != 3 {
		t.Fatalf("NumNodes() = %d, want 3", g.NumNodes())
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	leaves := g.Leaves()
	if len(leaves) != 2 {
		t.Errorf("Leaves() = %v, want 2 (compile_a, compile_b)", leaves)
	}
}

func TestParseUnknownDependency(t *testing.T) {
	const bad = `<BuildSet>
  <Task Name="a" Tool="cl.exe" DependsOn="missing" />
</BuildSet>`
	g := graph.New()
	if err := Parse(strings.NewReader(bad), g); err == nil {
		t.Fatal("expected an error for an unresolvable DependsOn")
	}
}

func TestParseEmptyManifest(t *testing.T) {
	g := graph.New()
	if err := Parse(strings.NewReader(`<BuildSet></BuildSet>`), g); err == nil {
		t.Fatal("expected an error for a manifest with no tasks")
	}
}
