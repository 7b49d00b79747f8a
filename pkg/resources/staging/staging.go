// Package staging holds uploads on local disk between receipt and persistence.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-resources/pkg/resources"
)

// Config options for the staging area
type Config struct {
	BaseDir string // Directory holding staged files
}

// Area is a filesystem implementation of resources.Stager
type Area struct {
	baseDir string
}

// New creates the staging directory if needed
func New(config Config) (*Area, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Area{baseDir: config.BaseDir}, nil
}

// Dir returns the staging directory
func (a *Area) Dir() string { return a.baseDir }

// Stage writes reader to a new file named name. A partially written file is
// removed before the error is returned.
func (a *Area) Stage(ctx context.Context, name string, reader io.Reader) (*resources.StagedFile, error) {
	filePath, err := a.path(name)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	size, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", copyErr)
	}

	return &resources.StagedFile{Name: name, Path: filePath, Size: size}, nil
}

// Open reads a staged file back
func (a *Area) Open(name string) (io.ReadCloser, error) {
	filePath, err := a.path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, resources.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Remove deletes a staged file; a missing file is not an error
func (a *Area) Remove(name string) error {
	filePath, err := a.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// path resolves name inside the staging directory, rejecting anything that
// would escape it
func (a *Area) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid staged file name %q", resources.ErrValidation, name)
	}
	return filepath.Join(a.baseDir, name), nil
}
