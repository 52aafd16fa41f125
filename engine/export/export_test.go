package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/corpusforge/corpusgraph/engine/domain"
)

func TestRenderNoteAlwaysWrapsFrontmatterAliasesLineOptional(t *testing.T) {
	withAliases := domain.GraphNode{ConceptID: "turbocharger", Content: "body text", Aliases: []string{"turbo", "forced induction"}}
	out := renderNote(withAliases)
	if !strings.HasPrefix(out, "---\naliases:\n") {
		t.Fatalf("expected frontmatter prefix, got %q", out)
	}
	if !strings.Contains(out, "- turbo\n") || !strings.Contains(out, "- forced induction\n") {
		t.Fatalf("expected both aliases listed, got %q", out)
	}
	if !strings.HasSuffix(out, "body text") {
		t.Fatalf("expected body text preserved, got %q", out)
	}

	noAliases := domain.GraphNode{ConceptID: "wastegate", Content: "plain body"}
	if got := renderNote(noAliases); got != "---\n---\n\nplain body" {
		t.Fatalf("expected empty frontmatter wrapper without aliases, got %q", got)
	}
}

func TestBuildZipProducesOneEntryPerNode(t *testing.T) {
	nodes := []domain.GraphNode{
		{ConceptID: "boost pressure", Content: "note one"},
		{ConceptID: "intercooler", Content: "note two", Aliases: []string{"charge air cooler"}},
	}

	data, err := buildZip(nodes)
	if err != nil {
		t.Fatalf("buildZip: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(r.File) != len(nodes) {
		t.Fatalf("expected %d entries, got %d", len(nodes), len(r.File))
	}

	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if len(content) == 0 {
			t.Fatalf("expected non-empty content for %s", f.Name)
		}
	}
	if !names["boost pressure.md"] || !names["intercooler.md"] {
		t.Fatalf("expected filenames keyed by concept_id, got %+v", names)
	}
}
