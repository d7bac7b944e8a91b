package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("writes content with trailing newline", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "doc.json")

		if err := WriteFileAtomic(OsFs(), path, []byte(`{"a":1}`), PrivatePerm); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "{\"a\":1}\n" {
			t.Errorf("content = %q, want %q", data, "{\"a\":1}\n")
		}
	})

	t.Run("sets private permissions", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "secret.yaml")

		if err := WriteFileAtomic(OsFs(), path, []byte("x: 1\n"), PrivatePerm); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o077 != 0 {
			t.Errorf("mode = %v, want no group/other bits", info.Mode().Perm())
		}
	})

	t.Run("tightens permissions of an existing world-readable file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "old.yaml")
		if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		if err := WriteFileAtomic(OsFs(), path, []byte("new\n"), PrivatePerm); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != PrivatePerm {
			t.Errorf("mode = %v, want %v", info.Mode().Perm(), PrivatePerm)
		}
	})

	t.Run("creates nested directories", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "a", "b", "c.json")

		if err := WriteFileAtomic(OsFs(), path, []byte("{}"), PrivatePerm); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("file should exist: %v", err)
		}
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "doc.json")

		for i := 0; i < 3; i++ {
			if err := WriteFileAtomic(OsFs(), path, []byte("{}"), PrivatePerm); err != nil {
				t.Fatal(err)
			}
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.Contains(e.Name(), ".tmp-") {
				t.Errorf("leftover temp file %s", e.Name())
			}
		}
	})

	t.Run("read-only filesystem keeps the previous file", func(t *testing.T) {
		base := afero.NewMemMapFs()
		if err := afero.WriteFile(base, "/etc/app/doc.json", []byte("old\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		ro := afero.NewReadOnlyFs(base)

		if err := WriteFileAtomic(ro, "/etc/app/doc.json", []byte("new"), PrivatePerm); err == nil {
			t.Fatal("expected error on read-only filesystem")
		}

		data, err := afero.ReadFile(base, "/etc/app/doc.json")
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "old\n" {
			t.Errorf("content = %q, want unchanged %q", data, "old\n")
		}
	})
}

func TestExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	if Exists(fs, "/missing") {
		t.Error("Exists(/missing) = true, want false")
	}
	if err := afero.WriteFile(fs, "/present", []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !Exists(fs, "/present") {
		t.Error("Exists(/present) = false, want true")
	}
}
