// Package hash computes content digests for files and directory trees.
//
// The snapshot manager uses tree digests to confirm that crucial state
// landed in the backup byte-for-byte, and tests use them to compare the
// working tree before and after an update attempt.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Hasher provides an abstraction for content hashing operations.
type Hasher interface {
	// HashFile computes the hash of the file at the given path.
	HashFile(path string) (string, error)

	// HashTree computes a digest of a file or of a directory's full contents.
	HashTree(path string) (string, error)
}

// SHA256Hasher implements Hasher using SHA-256.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// HashFile computes the SHA-256 hash of the file at the given path.
func (h *SHA256Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashTree computes a digest over every regular file below path. Entries are
// visited in lexical order and each contributes its slash-separated relative
// path and content hash, so two trees hash equal iff they hold the same
// files with the same bytes. Empty directories do not contribute.
func (h *SHA256Hasher) HashTree(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return h.HashFile(path)
	}

	tree := sha256.New()
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		sum, err := h.HashFile(p)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tree, "%s\x00%s\n", filepath.ToSlash(rel), sum)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash tree %s: %w", path, err)
	}

	return hex.EncodeToString(tree.Sum(nil)), nil
}
