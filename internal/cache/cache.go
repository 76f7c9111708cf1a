// Package cache persists downloaded rule files, writing only when the
// content hash actually changed.
package cache

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"clashforge/internal/model"
)

const stage = "persist_cache"

// Status reports what PersistIfChanged did.
type Status int

const (
	// StatusEmptyInput means the new content was empty; existing content is
	// never deleted or overwritten by an empty fetch.
	StatusEmptyInput Status = iota
	// StatusCreated means no file existed and the content was written.
	StatusCreated
	// StatusUnchanged means the file already holds identical content.
	StatusUnchanged
	// StatusUpdated means the hashes differed and the file was rewritten.
	StatusUpdated
)

func (s Status) String() string {
	switch s {
	case StatusEmptyInput:
		return "empty input"
	case StatusCreated:
		return "created"
	case StatusUnchanged:
		return "unchanged"
	case StatusUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

type CacheError struct {
	AppError model.AppError
	Cause    error
}

func (e *CacheError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// PersistIfChanged writes data to path unless an identical copy is already
// there. Identity is a blake3 hash over the full content of each side.
// Write failures are fatal to the run: a half-persisted cache is worse than
// an aborted build.
func PersistIfChanged(fsys afero.Fs, data []byte, path string) (Status, error) {
	if len(data) == 0 {
		return StatusEmptyInput, nil
	}

	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return 0, readError(path, err)
	}
	if !exists {
		if err := write(fsys, data, path); err != nil {
			return 0, err
		}
		return StatusCreated, nil
	}

	local, err := afero.ReadFile(fsys, path)
	if err != nil {
		return 0, readError(path, err)
	}
	localSum := blake3.Sum256(local)
	newSum := blake3.Sum256(data)
	if bytes.Equal(localSum[:], newSum[:]) {
		return StatusUnchanged, nil
	}
	if err := write(fsys, data, path); err != nil {
		return 0, err
	}
	return StatusUpdated, nil
}

func write(fsys afero.Fs, data []byte, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return writeError(path, err)
		}
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return writeError(path, err)
	}
	return nil
}

func readError(path string, err error) error {
	return &CacheError{
		AppError: model.AppError{
			Code:    "CACHE_READ_ERROR",
			Message: "读取本地缓存文件失败",
			Stage:   stage,
			Path:    path,
		},
		Cause: err,
	}
}

func writeError(path string, err error) error {
	return &CacheError{
		AppError: model.AppError{
			Code:    "CACHE_WRITE_ERROR",
			Message: "写入本地缓存文件失败",
			Stage:   stage,
			Path:    path,
		},
		Cause: err,
	}
}
