// Package gitx inspects git checkouts produced by the fetcher.
package gitx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// ErrNotCheckout is returned when a directory is not a usable git checkout.
var ErrNotCheckout = errors.New("not a git checkout")

// Checkout describes a verified checkout.
type Checkout struct {
	Path   string
	Commit string
	Branch string
}

// ShortCommit returns the abbreviated commit hash.
func (c Checkout) ShortCommit() string {
	if len(c.Commit) > 7 {
		return c.Commit[:7]
	}
	return c.Commit
}

// VerifyCheckout confirms that path holds a git repository whose HEAD
// resolves to a commit.
func VerifyCheckout(path string) (Checkout, error) {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: %s has no .git: %v", ErrNotCheckout, path, err)
	}
	if !info.IsDir() {
		return Checkout{}, fmt.Errorf("%w: %s/.git is not a directory", ErrNotCheckout, path)
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: %v", ErrNotCheckout, err)
	}

	head, err := repo.Head()
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: failed to resolve HEAD: %v", ErrNotCheckout, err)
	}

	co := Checkout{Path: path, Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		co.Branch = head.Name().Short()
	}
	return co, nil
}
