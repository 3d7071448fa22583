package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("Creates New File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "S1.xml")

		if err := writeFileAtomic(filename, 0o644, writeString("<sample/>")); err != nil {
			t.Fatalf("writeFileAtomic failed: %v", err)
		}

		got, err := os.ReadFile(filename)
		if err != nil {
			t.Fatalf("Failed to read file: %v", err)
		}
		if string(got) != "<sample/>" {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("Overwrites Existing File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "S1.xml")
		if err := os.WriteFile(filename, []byte("initial"), 0o644); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}

		if err := writeFileAtomic(filename, 0o644, writeString("overwritten")); err != nil {
			t.Fatalf("writeFileAtomic failed: %v", err)
		}

		got, _ := os.ReadFile(filename)
		if string(got) != "overwritten" {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("Keeps Old Content When Writer Fails", func(t *testing.T) {
		dir := t.TempDir()
		filename := filepath.Join(dir, "S1.xml")
		if err := os.WriteFile(filename, []byte("initial"), 0o644); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}

		boom := errors.New("boom")
		err := writeFileAtomic(filename, 0o644, func(w io.Writer) error {
			io.WriteString(w, "partial")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}

		got, _ := os.ReadFile(filename)
		if string(got) != "initial" {
			t.Errorf("content = %q, want the original", got)
		}
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if isTempFile(e.Name()) {
				t.Errorf("temp file %s left behind", e.Name())
			}
		}
	})

	t.Run("Fails if Directory Missing", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "missing_folder", "S1.xml")
		if err := writeFileAtomic(filename, 0o644, writeString("x")); err == nil {
			t.Error("Expected error when directory is missing, got nil")
		}
	})
}
