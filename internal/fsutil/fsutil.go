// Package fsutil provides file and path utility functions for the voice installer.
//
// This package focuses on platform-agnostic ways to resolve application paths
// and to write files so that a reader never observes a half-written file under
// its final name.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "CACHE_DIR"
)

// Common application directory and path constants.
const (
	appName                = "voice-installer"
	cacheDirName           = "cache"
	voicesDirName          = "voices"
	tmpDir                 = "/tmp"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o640
	invalidCharReplacement = "_"
	tempFilePattern        = ".%s.%s.tmp"
)

// Error message and format string constants.
const (
	errUnsafeNameMsg        = "unsafe path element"
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtOpenSource        = "failed to open %s: %w"
	errFmtCreateTemp        = "failed to create temporary file for %s: %w"
	errFmtCopy              = "failed to copy %s to %s: %w"
	errFmtSync              = "failed to flush %s: %w"
	errFmtRename            = "failed to move %s into place: %w"
	errFmtUnsafeName        = "%w: %q"
)

// ErrUnsafeName is returned when a name would escape its parent directory.
var ErrUnsafeName = errors.New(errUnsafeNameMsg)

// GetCacheDir returns the application's cache directory, respecting an environment
// variable override and falling back to a standard user-based cache directory.
func GetCacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(tmpDir, appName, cacheDirName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// DefaultPackageRoot is the directory that holds one subdirectory per installed language.
func DefaultPackageRoot() string {
	return filepath.Join(GetCacheDir(), voicesDirName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}

// CheckName verifies that name is a single, non-traversing path element.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf(errFmtUnsafeName, ErrUnsafeName, name)
	}

	return nil
}

// CopyFileAtomic copies src to dst through a temporary sibling of dst followed by a rename,
// replacing any existing dst.
func CopyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf(errFmtOpenSource, src, err)
	}
	defer in.Close()

	return writeAtomic(dst, func(w io.Writer) error {
		_, copyErr := io.Copy(w, in)
		if copyErr != nil {
			return fmt.Errorf(errFmtCopy, src, dst, copyErr)
		}

		return nil
	})
}

// WriteFileAtomic writes data to path through a temporary sibling and a rename.
func WriteFileAtomic(path string, data []byte) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		if err != nil {
			return fmt.Errorf(errFmtCopy, "buffer", path, err)
		}

		return nil
	})
}

func writeAtomic(dst string, fill func(io.Writer) error) error {
	dir := filepath.Dir(dst)
	tmpPath := filepath.Join(dir, fmt.Sprintf(tempFilePattern, filepath.Base(dst), uuid.NewString()))

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFilePermissions)
	if err != nil {
		return fmt.Errorf(errFmtCreateTemp, dst, err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	err = fill(tmp)
	if err != nil {
		return err
	}

	err = tmp.Sync()
	if err != nil {
		return fmt.Errorf(errFmtSync, dst, err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf(errFmtSync, dst, err)
	}

	err = os.Rename(tmpPath, dst)
	if err != nil {
		return fmt.Errorf(errFmtRename, dst, err)
	}

	committed = true

	return nil
}
