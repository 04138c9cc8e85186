package credbak

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDigestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cred")
	if err := os.WriteFile(path, []byte("API_KEY=xyz\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile() error: %v", err)
	}
	// sha256 of "API_KEY=xyz\n"
	want := "8663ce186ff46f074140a4d7becb670d2332b7ad8bc3bd43b3889fd3199489a3"
	if got != want {
		t.Errorf("DigestFile() = %s, want %s", got, want)
	}
}

func TestDigestFile_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile() error: %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("DigestFile() = %s, want %s", got, want)
	}
}

func TestDigestFile_Missing(t *testing.T) {
	if _, err := DigestFile(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("DigestFile() on missing file = nil error, want error")
	}
}
