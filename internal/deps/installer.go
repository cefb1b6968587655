package deps

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/notify"
	"github.com/danieljhkim/nazupdate/internal/progress"
	"github.com/danieljhkim/nazupdate/internal/runner"
)

// ErrInstallDirMissing is returned when the install command succeeded but
// left no install directory behind.
var ErrInstallDirMissing = errors.New("install directory missing after install")

// Installer runs the package manager's install command.
type Installer struct {
	runner     runner.Runner
	fs         fsops.FS
	spinner    *progress.Spinner
	notify     notify.Notifier
	command    []string
	installDir string
}

// NewInstaller creates an Installer. command is the program and its
// arguments; installDir is relative to the working root.
func NewInstaller(r runner.Runner, fs fsops.FS, spinner *progress.Spinner, n notify.Notifier, command []string, installDir string) *Installer {
	if n == nil {
		n = notify.Discard
	}
	if spinner == nil {
		spinner = progress.Disabled()
	}
	return &Installer{
		runner:     r,
		fs:         fs,
		spinner:    spinner,
		notify:     n,
		command:    command,
		installDir: installDir,
	}
}

// CommandLine renders the install command for manual instructions.
func (i *Installer) CommandLine() string {
	return strings.Join(i.command, " ")
}

// Install runs the install command in root when report requires it. It
// reports whether the command ran.
func (i *Installer) Install(ctx context.Context, root string, report Report) (bool, error) {
	if !report.NeedsInstall() {
		i.notify.Detail("Dependencies already up to date, skipping install")
		return false, nil
	}
	if len(i.command) == 0 {
		return false, fmt.Errorf("no install command configured")
	}

	i.notify.Detail(fmt.Sprintf("Installing dependencies (%s)", report))
	err := i.spinner.Run(ctx, "Installing dependencies...", func(ctx context.Context) error {
		_, err := i.runner.Run(ctx, root, i.command[0], i.command[1:]...)
		return err
	})
	if err != nil {
		return true, fmt.Errorf("%s failed: %w", i.CommandLine(), err)
	}

	ok, err := i.fs.Exists(filepath.Join(root, filepath.FromSlash(i.installDir)))
	if err != nil {
		return true, fmt.Errorf("failed to check %s: %w", i.installDir, err)
	}
	if !ok {
		return true, fmt.Errorf("%w: %s", ErrInstallDirMissing, i.installDir)
	}
	return true, nil
}
