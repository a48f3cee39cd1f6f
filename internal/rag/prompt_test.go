package rag

import (
	"strings"
	"testing"
)

func TestBuildPrompt_Template(t *testing.T) {
	t.Parallel()
	got := BuildPrompt("Why?", []Result{{Content: "first"}, {Content: "second"}}, 1800)
	want := "You are an assistant. Use the following documents to answer the question.\n\n" +
		"first\n---\nsecond" +
		"\n\nQuestion: Why?\nAnswer:"
	if got != want {
		t.Errorf("BuildPrompt =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildPrompt_TruncatesPerDocument(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", 2000)
	got := BuildPrompt("q", []Result{{Content: long}}, 1800)
	if !strings.Contains(got, strings.Repeat("é", 1800)+"\n\nQuestion:") {
		t.Error("expected content truncated to 1800 characters")
	}
	if strings.Contains(got, strings.Repeat("é", 1801)) {
		t.Error("content exceeds 1800 characters")
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 5, "hello"},
		{"hello", 10, "hello"},
		{"héllo", 2, "hé"},
		{"hello", 0, "hello"},
		{"", 3, ""},
	}
	for _, tc := range tests {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
