package vlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wisckeydb/storage/kverrors"
)

func TestLogFileReadBytesPastEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000.vlog")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	lf, err := openLogFile(0, path, file, true)
	if err != nil {
		t.Fatal(err)
	}
	defer lf.Close()

	if _, err := lf.ReadBytes(0, 100); !errors.Is(err, kverrors.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}
