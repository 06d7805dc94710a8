package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemVault stores export blobs as files under a root directory. Keys
// may contain slashes; they map directly to subdirectories.
type FileSystemVault struct {
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &FileSystemVault{root: root}, nil
}

// Put stores a blob under the given key using atomic write (temp file + rename).
func (v *FileSystemVault) Put(_ context.Context, key string, r io.Reader) error {
	destPath := filepath.Join(v.root, filepath.FromSlash(key))
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	// Temp file in the same directory so the rename stays atomic
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get retrieves a blob by key and writes it to w.
func (v *FileSystemVault) Get(_ context.Context, key string, w io.Writer) error {
	srcPath := filepath.Join(v.root, filepath.FromSlash(key))

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob not found: %s", key)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault root is an accessible directory.
func (v *FileSystemVault) ValidateSetup(context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

var _ Vault = (*FileSystemVault)(nil)
