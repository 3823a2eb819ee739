package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFilename is returned for names that are not a plain file name
var ErrInvalidFilename = errors.New("invalid filename")

// PartialSuffix marks in-progress artifact writes in the scratch directory
const PartialSuffix = ".part"

// LocalStorage keeps assembled recordings in a scratch directory
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(tempDir string) *LocalStorage {
	return &LocalStorage{
		tempDir: tempDir,
	}
}

// Dir returns the scratch directory
func (ls *LocalStorage) Dir() string {
	return ls.tempDir
}

// Path returns the artifact path for filename
func (ls *LocalStorage) Path(filename string) string {
	return filepath.Join(ls.tempDir, filename)
}

// WriteArtifact concatenates parts into <tempDir>/<filename>. The bytes go to
// a hidden temp file in the same directory which is synced and renamed, so
// readers see either the whole artifact or nothing.
func (ls *LocalStorage) WriteArtifact(filename string, parts [][]byte) (int64, error) {
	if err := ValidateFilename(filename); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(ls.tempDir, "."+filename+"-*"+PartialSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	var size int64
	for _, part := range parts {
		n, err := tmp.Write(part)
		size += int64(n)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("failed to write artifact: %w", err)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpPath, ls.Path(filename)); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to publish artifact: %w", err)
	}

	return size, nil
}

// Size returns the size in bytes of the artifact for filename
func (ls *LocalStorage) Size(filename string) (int64, error) {
	info, err := os.Stat(ls.Path(filename))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the artifact for filename
func (ls *LocalStorage) Remove(filename string) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	return os.Remove(ls.Path(filename))
}

// ValidateFilename accepts only plain file names that stay inside the
// scratch directory
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	case len(name) > 200:
		return fmt.Errorf("%w: longer than 200 bytes", ErrInvalidFilename)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is hidden", ErrInvalidFilename, name)
	}
	return nil
}
