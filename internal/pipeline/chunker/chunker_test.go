package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitEmpty(t *testing.T) {
	if got := Split("", 10, 2); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
	if got := Split("   \n\t ", 10, 2); got != nil {
		t.Fatalf("expected nil for whitespace text, got %v", got)
	}
}

func TestSplitSingleWindow(t *testing.T) {
	text := "alpha beta gamma"
	chunks := Split(text, 10, 2)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != text || c.CharStart != 0 || c.CharEnd != len(text) || c.WordCount != 3 {
		t.Fatalf("unexpected chunk: %+v", c)
	}
}

func TestSplitOverlapAndOffsets(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	text := strings.Join(words, " ")

	chunks := Split(text, 10, 3)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if text[c.CharStart:c.CharEnd] != c.Text {
			t.Fatalf("chunk %d text does not match its span", i)
		}
		if i > 0 {
			prev := chunks[i-1]
			if c.CharStart >= prev.CharEnd {
				t.Fatalf("chunk %d does not overlap its predecessor", i)
			}
			if c.CharStart <= prev.CharStart {
				t.Fatalf("chunk %d does not advance", i)
			}
		}
	}
	// Second window starts at word 7 (10 - 3 overlap).
	if !strings.HasPrefix(chunks[1].Text, "w07") {
		t.Fatalf("expected second chunk to start at w07, got %q", chunks[1].Text[:3])
	}
	last := chunks[len(chunks)-1]
	if last.CharEnd != len(text) {
		t.Fatalf("last chunk must reach the end of text")
	}
}

func TestSplitClampsDegenerateOverlap(t *testing.T) {
	text := strings.Repeat("word ", 30)
	chunks := Split(text, 10, 10)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks despite overlap == window")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].CharStart <= chunks[i-1].CharStart {
			t.Fatalf("walk must advance even with clamped overlap")
		}
	}
}

func TestSplitUnicodeOffsets(t *testing.T) {
	text := "naïve café 東京 test"
	chunks := Split(text, 2, 1)
	for i, c := range chunks {
		if text[c.CharStart:c.CharEnd] != c.Text {
			t.Fatalf("chunk %d span broken on multibyte text", i)
		}
	}
}
