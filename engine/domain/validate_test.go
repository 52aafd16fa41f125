package domain

import (
	"errors"
	"testing"
)

func TestValidateConceptID(t *testing.T) {
	cases := map[string]bool{
		"neural network": true,
		"intro":          true,
		"a1 b2":          true,
		"":               false,
		"Neural":         false,
		"neural_network": false,
		" neural":        false,
		"1intro":         true,
	}
	for id, want := range cases {
		err := ValidateConceptID(id)
		got := err == nil
		if got != want {
			t.Errorf("ValidateConceptID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestValidateNoSelfLoop(t *testing.T) {
	if err := ValidateNoSelfLoop("a", []string{"b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateNoSelfLoop("a", []string{"b", "a"})
	if err == nil {
		t.Fatal("expected self-loop error")
	}
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestValidateBlobKey(t *testing.T) {
	good := []string{"uploads/abc.pdf", "exports/proj.zip"}
	for _, k := range good {
		if err := ValidateBlobKey(k); err != nil {
			t.Errorf("ValidateBlobKey(%q) unexpected error: %v", k, err)
		}
	}
	bad := []string{"", "../etc/passwd", "/etc/passwd", "uploads/../../etc/passwd"}
	for _, k := range bad {
		if err := ValidateBlobKey(k); err == nil {
			t.Errorf("ValidateBlobKey(%q) expected error, got nil", k)
		}
	}
}

func TestValidateFilename(t *testing.T) {
	if err := ValidateFilename("report.pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []string{"", ".", "..", "a/b.pdf", "a\\b.pdf"}
	for _, n := range bad {
		if err := ValidateFilename(n); err == nil {
			t.Errorf("ValidateFilename(%q) expected error", n)
		}
	}
}

func TestGraphNodeHelpers(t *testing.T) {
	n := &GraphNode{OutboundLinks: []string{"a", "b"}, Aliases: []string{"x"}}
	if !n.HasOutbound("a") || n.HasOutbound("z") {
		t.Fatal("HasOutbound incorrect")
	}
	if !n.HasAlias("x") || n.HasAlias("z") {
		t.Fatal("HasAlias incorrect")
	}
}

func TestGraphSorted(t *testing.T) {
	g := NewGraph()
	g.Nodes["b concept"] = &GraphNode{ConceptID: "b concept"}
	g.Nodes["a concept"] = &GraphNode{ConceptID: "a concept"}
	sorted := g.Sorted()
	if len(sorted) != 2 || sorted[0].ConceptID != "a concept" || sorted[1].ConceptID != "b concept" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}
