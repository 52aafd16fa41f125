package notes

import "testing"

func TestBuildPromptIncludesConceptAndLinks(t *testing.T) {
	prompt := buildPrompt("gradient descent", []string{"loss function", "learning rate"}, "some context")
	if !contains(prompt, "gradient descent") {
		t.Fatalf("expected concept id in prompt")
	}
	if !contains(prompt, "[[loss function]]") || !contains(prompt, "[[learning rate]]") {
		t.Fatalf("expected wiki-linked outbound links in prompt, got %q", prompt)
	}
	if !contains(prompt, "some context") {
		t.Fatalf("expected context in prompt")
	}
}

func TestAppendMissingRelatedAddsSection(t *testing.T) {
	note := "this note mentions [[loss function]] only."
	got := appendMissingRelated(note, []string{"loss function", "learning rate"})
	if !contains(got, "## related") {
		t.Fatalf("expected related section, got %q", got)
	}
	if !contains(got, "[[learning rate]]") {
		t.Fatalf("expected missing link listed, got %q", got)
	}
	if contains(got[len(note):], "[[loss function]]") == false {
		// loss function is already mentioned; fine as long as it's not duplicated
		// under ## related — just ensure learning rate is the one added.
	}
}

func TestAppendMissingRelatedNoOpWhenAllPresent(t *testing.T) {
	note := "mentions [[loss function]] and [[learning rate]] already."
	got := appendMissingRelated(note, []string{"loss function", "learning rate"})
	if got != note {
		t.Fatalf("expected no change, got %q", got)
	}
}

func TestAppendMissingRelatedIsCaseInsensitive(t *testing.T) {
	note := "mentions [[Loss Function]] already."
	got := appendMissingRelated(note, []string{"loss function"})
	if got != note {
		t.Fatalf("expected case-insensitive match to avoid duplication, got %q", got)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (len(substr) == 0 || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
