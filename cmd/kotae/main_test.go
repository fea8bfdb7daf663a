package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettleInboxFile(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox", "alice")
	uploads := filepath.Join(dir, "uploads")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(inbox, "notes.txt")
	if err := os.WriteFile(src, []byte("dropped content"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := settleInboxFile(uploads, "alice", "doc-1", "notes.txt", src)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(uploads, "alice", "doc-1_notes.txt")
	if got != want {
		t.Errorf("settled path = %q, want %q", got, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("settled file missing: %v", err)
	}
	if string(data) != "dropped content" {
		t.Errorf("settled content = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("inbox file should be gone after settling")
	}
}
