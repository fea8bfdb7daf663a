package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_Empty(t *testing.T) {
	c := New(1500, 300)
	if chunks := c.Split(""); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestSplit_ShortText(t *testing.T) {
	c := New(1500, 300)
	chunks := c.Split("a short note")
	if len(chunks) != 1 || chunks[0] != "a short note" {
		t.Errorf("short text should be a single unchanged chunk, got %v", chunks)
	}
}

func TestSplit_SizeAndOverlap(t *testing.T) {
	c := New(100, 20)
	text := strings.Repeat("x", 1000) // no natural boundaries: hard cuts
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := utf8.RuneCountInString(ch); n > 100 {
			t.Errorf("chunk %d has %d runes, want <= 100", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		tail := string(prev[len(prev)-20:])
		head := string(cur[:20])
		if tail != head {
			t.Errorf("chunks %d/%d do not share a 20-rune boundary", i-1, i)
		}
	}
}

func TestSplit_Reconstruct(t *testing.T) {
	texts := []string{
		strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200),
		strings.Repeat("para one.\n\npara two with more text.\n", 150),
		strings.Repeat("nowhitespaceatall", 300),
	}
	c := New(256, 64)
	for i, text := range texts {
		chunks := c.Split(text)
		if got := c.Reconstruct(chunks); got != text {
			t.Errorf("text %d: reconstruction mismatch (got %d runes, want %d)",
				i, utf8.RuneCountInString(got), utf8.RuneCountInString(text))
		}
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	// One paragraph break inside the first window: the cut must land there,
	// not mid-word at the hard limit.
	para1 := strings.Repeat("a", 80)
	para2 := strings.Repeat("b", 200)
	text := para1 + "\n\n" + para2
	c := New(100, 10)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got %q...", chunks[0][:20])
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	text := strings.Repeat("日本語のテキストです。", 100)
	c := New(50, 10)
	chunks := c.Split(text)
	for i, ch := range chunks {
		if !utf8.ValidString(ch) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(ch); n > 50 {
			t.Errorf("chunk %d has %d runes, want <= 50", i, n)
		}
	}
	if got := c.Reconstruct(chunks); got != text {
		t.Error("multibyte reconstruction mismatch")
	}
}

func TestSplit_TwoChunkDocument(t *testing.T) {
	// 2700 runes with size 1500 and overlap 300 covers in exactly two chunks
	// sharing a 300-rune boundary.
	text := strings.Repeat("z", 2700)
	c := New(1500, 300)
	chunks := c.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("expected exactly 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1500 || len(chunks[1]) != 1500 {
		t.Errorf("chunk lengths = %d, %d, want 1500, 1500", len(chunks[0]), len(chunks[1]))
	}
	if chunks[0][1200:] != chunks[1][:300] {
		t.Error("chunks do not share a 300-character boundary")
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(100, 100)
	if c.Overlap() >= c.ChunkSize() {
		t.Errorf("overlap %d not clamped below chunk size %d", c.Overlap(), c.ChunkSize())
	}
	chunks := c.Split(strings.Repeat("y", 500))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
}
