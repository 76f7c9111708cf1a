package cache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestPersistIfChanged_Created(t *testing.T) {
	fs := afero.NewMemMapFs()
	st, err := PersistIfChanged(fs, []byte("a\nb\n"), "rules/download/a.list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != StatusCreated {
		t.Fatalf("status=%v, want=%v", st, StatusCreated)
	}
	got, err := afero.ReadFile(fs, "rules/download/a.list")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, []byte("a\nb\n")) {
		t.Fatalf("content=%q, want=%q", got, "a\nb\n")
	}
}

func TestPersistIfChanged_Unchanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := PersistIfChanged(fs, []byte("same"), "a.list"); err != nil {
		t.Fatalf("first persist: %v", err)
	}
	st, err := PersistIfChanged(fs, []byte("same"), "a.list")
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if st != StatusUnchanged {
		t.Fatalf("status=%v, want=%v", st, StatusUnchanged)
	}
}

func TestPersistIfChanged_Updated(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := PersistIfChanged(fs, []byte("old"), "a.list"); err != nil {
		t.Fatalf("first persist: %v", err)
	}
	st, err := PersistIfChanged(fs, []byte("new"), "a.list")
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if st != StatusUpdated {
		t.Fatalf("status=%v, want=%v", st, StatusUpdated)
	}
	got, _ := afero.ReadFile(fs, "a.list")
	if string(got) != "new" {
		t.Fatalf("content=%q, want=%q", got, "new")
	}
}

func TestPersistIfChanged_EmptyInputKeepsExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "a.list", []byte("keep me"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, err := PersistIfChanged(fs, nil, "a.list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != StatusEmptyInput {
		t.Fatalf("status=%v, want=%v", st, StatusEmptyInput)
	}
	got, _ := afero.ReadFile(fs, "a.list")
	if string(got) != "keep me" {
		t.Fatalf("content=%q, want=%q", got, "keep me")
	}
}

func TestPersistIfChanged_WriteFailureIsFatal(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := PersistIfChanged(fs, []byte("x"), "a.list")
	var ce *CacheError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CacheError, got %T: %v", err, err)
	}
	if ce.AppError.Code != "CACHE_WRITE_ERROR" {
		t.Fatalf("code=%q, want=%q", ce.AppError.Code, "CACHE_WRITE_ERROR")
	}
}
