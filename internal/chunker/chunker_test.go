package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	got := Split("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected single chunk, got %q", got)
	}
}

func TestSplitPrefersNewline(t *testing.T) {
	text := strings.Repeat("a", 7) + "\n" + strings.Repeat("b", 5)
	got := Split(text, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(got), got)
	}
	if got[0] != strings.Repeat("a", 7) {
		t.Errorf("expected first chunk to end before newline, got %q", got[0])
	}
	if got[1] != strings.Repeat("b", 5) {
		t.Errorf("expected leading newline stripped, got %q", got[1])
	}
}

func TestSplitFallsBackToSpace(t *testing.T) {
	// Newline sits before half the limit, so the later space wins.
	text := "ab\ncdefg hijklmnop"
	got := Split(text, 10)
	if got[0] != "ab\ncdefg" {
		t.Fatalf("expected cut at space, got %q", got[0])
	}
}

func TestSplitHardCutWithoutDelimiters(t *testing.T) {
	text := strings.Repeat("x", 25)
	got := Split(text, 10)
	want := []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitLimitOne(t *testing.T) {
	got := Split("abc", 1)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %q", got)
	}
}

func TestSplitKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("한", 9)
	for _, c := range Split(text, 4) {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk is not valid UTF-8: %q", c)
		}
		if utf8.RuneCountInString(c) > 4 {
			t.Fatalf("chunk exceeds limit: %q", c)
		}
	}
}

func TestSplitRoundTripAndBounds(t *testing.T) {
	inputs := []string{
		"The quick brown fox jumps over the lazy dog.\nSecond line here.\n\n\nThird after blanks.",
		strings.Repeat("word ", 200),
		strings.Repeat("line\n", 120),
		"no-delimiters-" + strings.Repeat("z", 300),
		"mixed \n\n\n spacing\n and   more  \n" + strings.Repeat("ab cd\n", 40),
	}
	for _, text := range inputs {
		for _, limit := range []int{1, 2, 3, 7, 16, 50, 4000} {
			chunks := Split(text, limit)
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > limit {
					t.Fatalf("limit %d: chunk %d has %d runes", limit, i, n)
				}
			}
			if got, want := stripNewlines(strings.Join(chunks, "")), stripNewlines(text); got != want {
				t.Fatalf("limit %d: content mismatch after join", limit)
			}
			if !strings.HasSuffix(text, chunks[len(chunks)-1]) {
				t.Fatalf("limit %d: last chunk %q is not a suffix of input", limit, chunks[len(chunks)-1])
			}
		}
	}
}

func stripNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "")
}
