// Package manifest parses build-graph manifest files into an
// internal/graph.Graph. octobuild accepts manifests in IncrediBuild-style
// XGE XML, the format _examples/original_source/src/bin/xgConsole.rs's
// xg::parser::parse reads. This is a minimal, best-effort decoder
// sufficient to drive the rest of the system end-to-end.
package manifest

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/graph"
	"golang.org/x/xerrors"
)

// xgTask is one <Task> element: a single BuildTask plus the names of the
// tasks it depends on.
type xgTask struct {
	Name       string `xml:"Name,attr"`
	Caption    string `xml:"Caption,attr"`
	Tool       string `xml:"Tool,attr"`
	WorkingDir string `xml:"WorkingDir,attr"`
	Params     string `xml:"Params,attr"`
	DependsOn  string `xml:"DependsOn,attr"`
}

type xgBuildSet struct {
	XMLName xml.Name `xml:"BuildSet"`
	Tasks   []xgTask `xml:"Task"`
}

// Parse decodes one XGE-style manifest document and appends its tasks into
// g, wiring DependsOn attributes into graph edges. Multiple manifest files
// can be parsed into the same Graph, matching xgConsole's "union of all
// given files" behavior.
func Parse(r io.Reader, g *graph.Graph) error {
	var doc xgBuildSet
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return xerrors.Errorf("%w: %v", octobuild.ErrManifestInvalid, err)
	}
	if len(doc.Tasks) == 0 {
		return xerrors.Errorf("%w: manifest has no <Task> elements", octobuild.ErrManifestInvalid)
	}

	ids := make(map[string]int64, len(doc.Tasks))
	for _, t := range doc.Tasks {
		task := octobuild.BuildTask{
			Title:      firstNonEmpty(t.Caption, t.Name),
			Exec:       t.Tool,
			WorkingDir: t.WorkingDir,
			Args:       splitParams(t.Params),
		}
		ids[t.Name] = g.AddTask(task)
	}

	for _, t := range doc.Tasks {
		id, ok := ids[t.Name]
		if !ok {
			continue
		}
		for _, dep := range strings.Fields(strings.ReplaceAll(t.DependsOn, ",", " ")) {
			depID, ok := ids[dep]
			if !ok {
				return xerrors.Errorf("%w: task %q depends on unknown task %q", octobuild.ErrManifestInvalid, t.Name, dep)
			}
			g.AddEdge(id, depID)
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// splitParams splits a manifest's whitespace-separated Params attribute
// into individual argv-style tokens. It does not attempt shell quoting;
// IncrediBuild-style manifests pre-split their arguments per token.
func splitParams(params string) []string {
	fields := strings.Fields(params)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
