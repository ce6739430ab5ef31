package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveThenOpenRoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	body := "<ans:mensagemTISS/>"
	if err := store.Save(ctx, "f-1_LOTE_481.xml", strings.NewReader(body)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rc, err := store.Open(ctx, "f-1_LOTE_481.xml")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(got) != body {
		t.Fatalf("stored body = %q, want %q", got, body)
	}
}

func TestSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := store.Save(context.Background(), "f-2.xml", bytes.NewReader([]byte("<xml/>"))); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read storage dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "f-2.xml" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("storage dir contents = %v, want only f-2.xml", names)
	}
}

func TestOpenUnknownKeyFails(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.Open(context.Background(), "missing.xml"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestNewCreatesNestedBasePath(t *testing.T) {
	base := filepath.Join(t.TempDir(), "claims", "incoming")
	if _, err := New(base); err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(base)
	if err != nil {
		t.Fatalf("stat base path: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("base path is not a directory")
	}
}
