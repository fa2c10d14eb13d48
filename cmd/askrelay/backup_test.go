package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestBackupRoundTrip(t *testing.T) {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	src := t.TempDir()
	db := filepath.Join(src, "history.db")
	cfg := filepath.Join(src, "config.json")
	notes := filepath.Join(src, "notes.txt")
	os.WriteFile(db, []byte("db-bytes"), 0o600)
	os.WriteFile(cfg, []byte(`{"settings":{}}`), 0o600)
	os.WriteFile(notes, []byte("ignored"), 0o600)

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	if err := createTarGz(archive, []string{db, cfg, notes}); err != nil {
		t.Fatalf("createTarGz: %v", err)
	}

	dst := t.TempDir()
	dstDB := filepath.Join(dst, "data", "h.db")
	dstCfg := filepath.Join(dst, "cfg", "config.yaml")
	os.MkdirAll(filepath.Dir(dstDB), 0o755)
	os.WriteFile(dstDB+"-wal", []byte("stale"), 0o600)

	restored, err := extractTarGz(context.Background(), archive, dstDB, dstCfg)
	if err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("restored %v, want 2 files", restored)
	}

	if data, _ := os.ReadFile(dstDB); string(data) != "db-bytes" {
		t.Errorf("db = %q", data)
	}
	if data, _ := os.ReadFile(dstCfg); string(data) != `{"settings":{}}` {
		t.Errorf("config = %q", data)
	}
	if _, err := os.Stat(dstDB + "-wal"); !os.IsNotExist(err) {
		t.Error("stale WAL file should be removed")
	}
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.tar.gz")
	os.WriteFile(bad, []byte("plain text"), 0o600)
	if _, err := extractTarGz(context.Background(), bad, "a", "b"); err == nil {
		t.Error("expected error for non-gzip input")
	}
}

func TestRestoreTarget(t *testing.T) {
	cases := map[string]string{
		"history.db":       "/db",
		"config.json":      "/cfg",
		"config.yml":       "/cfg",
		"../../etc/passwd": "",
		"other.db":         "",
	}
	for name, want := range cases {
		if got := restoreTarget(name, "/db", "/cfg"); got != want {
			t.Errorf("restoreTarget(%q) = %q, want %q", name, got, want)
		}
	}
}
