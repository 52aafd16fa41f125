package extract

import (
	"strings"
	"testing"
)

func TestSplitWindowsShortTextIsSingleWindow(t *testing.T) {
	text := "hello world"
	windows := splitWindows(text, 50_000, 5_000)
	if len(windows) != 1 || windows[0] != text {
		t.Fatalf("expected single window, got %+v", windows)
	}
}

func TestSplitWindowsOverlap(t *testing.T) {
	text := strings.Repeat("a", 120_000)
	windows := splitWindows(text, 50_000, 5_000)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
	for _, w := range windows {
		if len(w) > 50_000 {
			t.Fatalf("window exceeds max size: %d", len(w))
		}
	}
	// Total covered characters (accounting for overlap) must reach the end.
	last := windows[len(windows)-1]
	if !strings.HasSuffix(text, last) {
		t.Fatalf("final window should reach end of text")
	}
}

func TestSkeletonExtractsHeadingsOnly(t *testing.T) {
	doc := "# Title\n\nSome body text.\n\n## Subsection\n\nMore body.\n\n### Too deep\n"
	skel := skeleton(doc)
	if !strings.Contains(skel, "# Title") || !strings.Contains(skel, "## Subsection") {
		t.Fatalf("expected H1/H2 headings in skeleton, got %q", skel)
	}
	if strings.Contains(skel, "Too deep") {
		t.Fatalf("H3 should not appear in skeleton, got %q", skel)
	}
	if strings.Contains(skel, "Some body text") {
		t.Fatalf("body text should not appear in skeleton, got %q", skel)
	}
}

func TestRawGraphDataToFragmentPrefersOutboundLinksOverLinks(t *testing.T) {
	data := rawGraphData{Nodes: []rawNode{
		{ID: "a", OutboundLinks: []string{"b"}, Links: []string{"c"}},
		{ID: "d", Links: []string{"e"}},
	}}
	frag := data.toFragment()
	if frag.Nodes[0].OutboundLinks[0] != "b" {
		t.Fatalf("expected outbound_links to take priority, got %+v", frag.Nodes[0])
	}
	if frag.Nodes[1].OutboundLinks[0] != "e" {
		t.Fatalf("expected fallback to links field, got %+v", frag.Nodes[1])
	}
}
