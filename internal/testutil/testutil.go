package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// ModuleRoot returns the directory holding this module's go.mod.
func ModuleRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("no caller information")
	}
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", errors.New("go.mod not found above " + filepath.Dir(file))
		}
	}
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
