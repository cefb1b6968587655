// Package remote fetches a fresh copy of the application into the staging
// directory.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/imroc/req/v3"

	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/gitx"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/progress"
	"github.com/danieljhkim/nazupdate/internal/runner"
)

// Fetcher downloads the latest version into a staging directory.
type Fetcher interface {
	// Fetch replaces dest with a fresh checkout and returns it.
	Fetch(ctx context.Context, dest string) (gitx.Checkout, error)
}

// GitFetcher clones the repository with the git CLI.
type GitFetcher struct {
	runner  runner.Runner
	fs      fsops.FS
	http    *req.Client
	spinner *progress.Spinner
	notify  notify.Notifier

	// GitBinary is the git executable.
	GitBinary string

	// URL is the repository to clone.
	URL string

	// Discard lists staging-relative paths dropped after the clone.
	Discard []string
}

// NewGitFetcher creates a GitFetcher. A nil http client disables the
// reachability probe.
func NewGitFetcher(r runner.Runner, fs fsops.FS, http *req.Client, spinner *progress.Spinner, n notify.Notifier, gitBinary, repoURL string, discard []string) *GitFetcher {
	if n == nil {
		n = notify.Discard
	}
	if spinner == nil {
		spinner = progress.Disabled()
	}
	return &GitFetcher{
		runner:    r,
		fs:        fs,
		http:      http,
		spinner:   spinner,
		notify:    n,
		GitBinary: gitBinary,
		URL:       repoURL,
		Discard:   discard,
	}
}

// Fetch runs a depth-1 clone into dest and validates the result.
func (f *GitFetcher) Fetch(ctx context.Context, dest string) (gitx.Checkout, error) {
	co, err := f.fetch(ctx, dest)
	if err != nil {
		fe := &FetchError{URL: f.URL, Code: runner.ExitCode(err), Err: err}
		fe.Hint = f.diagnose(ctx)
		return gitx.Checkout{}, fe
	}
	return co, nil
}

func (f *GitFetcher) fetch(ctx context.Context, dest string) (gitx.Checkout, error) {
	if err := f.fs.RemoveAll(dest); err != nil {
		return gitx.Checkout{}, fmt.Errorf("failed to remove old staging directory: %w", err)
	}

	f.notify.Detail(fmt.Sprintf("Cloning %s", f.URL))
	err := f.spinner.Run(ctx, "Downloading latest version...", func(ctx context.Context) error {
		_, err := f.runner.Run(ctx, filepath.Dir(dest), f.GitBinary, "clone", "--depth", "1", f.URL, dest)
		return err
	})
	if err != nil {
		return gitx.Checkout{}, fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}

	ok, err := f.fs.Exists(dest)
	if err != nil {
		return gitx.Checkout{}, fmt.Errorf("failed to check staging directory: %w", err)
	}
	if !ok {
		return gitx.Checkout{}, fmt.Errorf("%w: %s", ErrStagingMissing, dest)
	}

	co, err := gitx.VerifyCheckout(dest)
	if err != nil {
		return gitx.Checkout{}, err
	}

	for _, rel := range f.Discard {
		if err := f.fs.RemoveAll(filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			f.notify.Warn(fmt.Sprintf("Could not remove %s from the download: %v", rel, err))
		}
	}

	return co, nil
}

// diagnose probes the remote host to tell a network outage from a
// repository problem. It never fails.
func (f *GitFetcher) diagnose(ctx context.Context) string {
	target, ok := probeTarget(f.URL)
	if !ok || f.http == nil {
		return ""
	}

	resp, err := f.http.R().SetContext(ctx).SetRetryCount(0).Head(target)
	if err != nil {
		return fmt.Sprintf("could not reach %s, check your internet connection", target)
	}
	return fmt.Sprintf("%s is reachable (HTTP %d), the repository may be unavailable or the URL wrong", target, resp.StatusCode)
}

// probeTarget returns the scheme and host of an http(s) URL.
func probeTarget(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

// FakeFetcher is a test double that copies a prepared tree into dest.
type FakeFetcher struct {
	FS fsops.FS

	// Source is copied into dest on each call when set.
	Source string

	// Err, when set, is returned before anything is written.
	Err error

	// Calls records each dest argument.
	Calls []string
}

// NewFakeFetcher creates a FakeFetcher serving the tree at source.
func NewFakeFetcher(fs fsops.FS, source string) *FakeFetcher {
	return &FakeFetcher{FS: fs, Source: source}
}

func (f *FakeFetcher) Fetch(_ context.Context, dest string) (gitx.Checkout, error) {
	f.Calls = append(f.Calls, dest)
	if f.Err != nil {
		return gitx.Checkout{}, f.Err
	}
	if err := f.FS.RemoveAll(dest); err != nil {
		return gitx.Checkout{}, err
	}
	if f.Source != "" {
		if err := f.FS.Copy(f.Source, dest); err != nil {
			return gitx.Checkout{}, err
		}
	}
	return gitx.Checkout{Path: dest, Commit: "0000000000000000000000000000000000000000"}, nil
}
