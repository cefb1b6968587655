// Package prereq checks that the external tools an update needs are
// installed.
package prereq

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/danieljhkim/nazupdate/internal/runner"
)

// ErrMissing is matched by every *MissingError.
var ErrMissing = errors.New("required tool missing")

// Tool is an executable probed with "<name> --version".
type Tool struct {
	Name string

	// Hints maps a GOOS value to install instructions; "" is the fallback.
	Hints map[string]string
}

// Hint returns install instructions for goos.
func (t Tool) Hint(goos string) string {
	if h, ok := t.Hints[goos]; ok {
		return h
	}
	return t.Hints[""]
}

// Git returns the git tool probed through binary.
func Git(binary string) Tool {
	return Tool{
		Name: binary,
		Hints: map[string]string{
			"windows": "Install Git from https://git-scm.com/download/win",
			"darwin":  "Install Git with: brew install git",
			"":        "Install Git with: sudo apt-get install git (Ubuntu/Debian) or your distribution's package manager",
		},
	}
}

// PackageManager returns the package manager tool probed through binary.
func PackageManager(binary string) Tool {
	return Tool{
		Name:  binary,
		Hints: map[string]string{"": "Install Node.js and npm from https://nodejs.org"},
	}
}

// Found is a tool that answered the probe.
type Found struct {
	Name    string
	Version string
}

// MissingError lists tools that could not be run.
type MissingError struct {
	Tools []Tool
	GOOS  string
}

func (e *MissingError) Error() string {
	names := make([]string, len(e.Tools))
	for i, t := range e.Tools {
		names[i] = t.Name
	}
	return fmt.Sprintf("%s not found: %s", pluralTools(len(names)), strings.Join(names, ", "))
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissing
}

// Hints returns one install instruction per missing tool.
func (e *MissingError) Hints() []string {
	out := make([]string, 0, len(e.Tools))
	for _, t := range e.Tools {
		if h := t.Hint(e.GOOS); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func pluralTools(n int) string {
	if n == 1 {
		return "required tool"
	}
	return "required tools"
}

// Check runs "<tool> --version" for each tool and returns the versions
// found, or a *MissingError naming every tool that failed.
func Check(ctx context.Context, r runner.Runner, dir string, tools ...Tool) ([]Found, error) {
	var found []Found
	var missing []Tool
	for _, t := range tools {
		out, err := r.Run(ctx, dir, t.Name, "--version")
		if err != nil {
			missing = append(missing, t)
			continue
		}
		found = append(found, Found{Name: t.Name, Version: firstLine(out)})
	}
	if len(missing) > 0 {
		return found, &MissingError{Tools: missing, GOOS: runtime.GOOS}
	}
	return found, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
