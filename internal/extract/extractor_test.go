package extract

import (
	"strings"
	"testing"
)

func TestExtractor_PlainText(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("hello world"), ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("got %q", text)
	}
}

func TestExtractor_InvalidUTF8Replaced(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte{'h', 'i', 0xff, 0xfe}, ".md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(text, "hi") || !strings.Contains(text, "�") {
		t.Errorf("invalid bytes not replaced: %q", text)
	}
}

func TestExtractor_HTML(t *testing.T) {
	e := NewExtractor()
	input := `<html><head><title>ignored</title><style>p{color:red}</style></head>
<body><p>First paragraph.</p><p>Second &amp; third.</p><script>alert(1)</script></body></html>`
	text, err := e.ExtractBytes([]byte(input), ".html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "First paragraph.") {
		t.Errorf("missing paragraph text: %q", text)
	}
	if !strings.Contains(text, "Second & third.") {
		t.Errorf("entities not decoded: %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") || strings.Contains(text, "ignored") {
		t.Errorf("script/style/head content leaked: %q", text)
	}
	if !strings.Contains(text, "First paragraph.\n\nSecond") {
		t.Errorf("paragraph boundary lost: %q", text)
	}
}

func TestExtractor_UnsupportedExtension(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("x"), ".exe"); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if e.Supported(".exe") {
		t.Error(".exe should not be supported")
	}
	if !e.Supported(".PDF") {
		t.Error("extension check should be case-insensitive")
	}
}
