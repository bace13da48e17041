package security

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestCheckFilePermissions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	t.Run("missing file is fine", func(t *testing.T) {
		if err := CheckFilePermissions(filepath.Join(dir, "missing"), 0600, logger); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("loose file is tightened", func(t *testing.T) {
		path := filepath.Join(dir, "certs.db")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}

		if err := CheckFilePermissions(path, 0600, logger); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("permissions = %o, want 600", perm)
		}
	})
}

func TestSecureCertDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "certs.db")

	for _, path := range []string{dbPath, dbPath + "-wal"} {
		if err := os.WriteFile(path, []byte("x"), 0666); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}

	SecureCertDatabase(dbPath, nil)

	for _, path := range []string{dbPath, dbPath + "-wal"} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("%s permissions = %o, want 600", filepath.Base(path), perm)
		}
	}
}
