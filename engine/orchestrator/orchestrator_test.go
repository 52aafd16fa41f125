package orchestrator

import "testing"

func TestFirstNonEmptyPrefersEarlierValue(t *testing.T) {
	if got := firstNonEmpty("fresh", "stale"); got != "fresh" {
		t.Fatalf("expected %q, got %q", "fresh", got)
	}
	if got := firstNonEmpty("", "stale"); got != "stale" {
		t.Fatalf("expected %q, got %q", "stale", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
