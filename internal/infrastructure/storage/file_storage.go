// Package storage keeps invoice documents and reports on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
)

var (
	// ErrInvalidName is returned for names with path separators or traversal
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotFound is returned when the named file does not exist
	ErrNotFound = errors.New("file not found")
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// LocalFileStorage implements port.DocumentStore for one base directory
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

var _ port.DocumentStore = (*LocalFileStorage)(nil)

// NewLocalFileStorage creates a new LocalFileStorage
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalFileStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// BaseDir returns the storage root
func (s *LocalFileStorage) BaseDir() string {
	return s.baseDir
}

// Save writes content under a sanitized version of name and returns the full path
func (s *LocalFileStorage) Save(ctx context.Context, name string, content []byte) (string, error) {
	safe := SanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	fullPath := filepath.Join(s.baseDir, safe)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		s.logger.Error("Failed to create base directory",
			zap.String("path", s.baseDir),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return fullPath, nil
}

// Read returns the content of a file in the base directory
func (s *LocalFileStorage) Read(ctx context.Context, name string) ([]byte, error) {
	fullPath, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Resolve maps a bare file name to its full path. Names containing path
// separators or parent references are rejected rather than cleaned.
func (s *LocalFileStorage) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	fullPath := filepath.Join(s.baseDir, name)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}
	return fullPath, nil
}

// Exists reports whether name is a regular file in the base directory
func (s *LocalFileStorage) Exists(name string) bool {
	fullPath, err := s.Resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// List returns the sorted names of regular files whose extension is one of
// extensions (case-insensitive). With no extensions every file is listed.
func (s *LocalFileStorage) List(extensions ...string) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	want := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		want[strings.ToLower(ext)] = true
	}

	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if len(want) > 0 && !want[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Move relocates name into destDir under the base directory and returns the
// new path. An existing file at the destination gets a numeric suffix.
func (s *LocalFileStorage) Move(ctx context.Context, name, destDir string) (string, error) {
	src, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, destDir)
	if err := s.validatePath(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	dst := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		s.logger.Error("Failed to move file",
			zap.String("from", src),
			zap.String("to", dst),
			zap.Error(err))
		return "", fmt.Errorf("failed to move file: %w", err)
	}

	s.logger.Debug("File moved", zap.String("from", src), zap.String("to", dst))
	return dst, nil
}

// validatePath checks that the path is within baseDir
func (s *LocalFileStorage) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("%w: path escapes base directory: %s", ErrInvalidName, fullPath)
	}
	return nil
}

// SanitizeName returns a filesystem-safe file name. Directory components
// are dropped and characters outside [A-Za-z0-9._-] become underscores.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return ""
	}
	return name
}
