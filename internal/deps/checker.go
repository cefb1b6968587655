// Package deps decides whether dependencies must be reinstalled and runs
// the install command when they do.
package deps

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"

	"github.com/danieljhkim/nazupdate/internal/fsops"
)

// Verdict is the outcome of a dependency check.
type Verdict string

const (
	VerdictManifestMissing   Verdict = "manifest-missing"
	VerdictInstallDirMissing Verdict = "install-dir-missing"
	VerdictDependencyMissing Verdict = "dependency-missing"
	VerdictUpToDate          Verdict = "up-to-date"
	VerdictCheckError        Verdict = "check-error"
)

// Report is the result of Checker.Check.
type Report struct {
	Verdict Verdict

	// Package names the first missing dependency for VerdictDependencyMissing.
	Package string

	// Declared is the number of dependency names in the manifest.
	Declared int

	// Err holds the cause of VerdictCheckError.
	Err error
}

// NeedsInstall reports whether the install command must run. Anything
// other than a positive up-to-date result requires an install.
func (r Report) NeedsInstall() bool {
	return r.Verdict != VerdictUpToDate
}

func (r Report) String() string {
	switch r.Verdict {
	case VerdictManifestMissing:
		return "package.json not found"
	case VerdictInstallDirMissing:
		return "node_modules not found"
	case VerdictDependencyMissing:
		return fmt.Sprintf("dependency %s is not installed", r.Package)
	case VerdictUpToDate:
		return fmt.Sprintf("all %d dependencies are installed", r.Declared)
	case VerdictCheckError:
		return fmt.Sprintf("dependency check failed: %v", r.Err)
	}
	return string(r.Verdict)
}

// manifest holds the dependency sections of package.json.
type manifest struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func (m manifest) names() []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, section := range []map[string]string{m.Dependencies, m.DevDependencies, m.OptionalDependencies} {
		for name := range section {
			set.Add(name)
		}
	}
	names := set.ToSlice()
	sort.Strings(names)
	return names
}

// Checker inspects the manifest and install directory of a working tree.
// It only reads.
type Checker struct {
	fs         fsops.FS
	manifest   string
	installDir string
}

// NewChecker creates a Checker for the given manifest and install
// directory, both relative to the working root.
func NewChecker(fs fsops.FS, manifest, installDir string) *Checker {
	return &Checker{fs: fs, manifest: manifest, installDir: installDir}
}

// Check computes the verdict for the working tree at root.
func (c *Checker) Check(root string) Report {
	manifestPath := filepath.Join(root, filepath.FromSlash(c.manifest))
	ok, err := c.fs.Exists(manifestPath)
	if err != nil {
		return Report{Verdict: VerdictCheckError, Err: err}
	}
	if !ok {
		return Report{Verdict: VerdictManifestMissing}
	}

	installPath := filepath.Join(root, filepath.FromSlash(c.installDir))
	ok, err = c.fs.Exists(installPath)
	if err != nil {
		return Report{Verdict: VerdictCheckError, Err: err}
	}
	if !ok {
		return Report{Verdict: VerdictInstallDirMissing}
	}

	data, err := c.fs.ReadFile(manifestPath)
	if err != nil {
		return Report{Verdict: VerdictCheckError, Err: fmt.Errorf("failed to read %s: %w", c.manifest, err)}
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Report{Verdict: VerdictCheckError, Err: fmt.Errorf("failed to parse %s: %w", c.manifest, err)}
	}

	names := m.names()
	for _, name := range names {
		// Scoped packages (@scope/name) live in nested directories.
		pkgPath := filepath.Join(installPath, filepath.FromSlash(path.Clean(name)))
		ok, err := c.fs.Exists(pkgPath)
		if err != nil {
			return Report{Verdict: VerdictCheckError, Err: err}
		}
		if !ok {
			return Report{Verdict: VerdictDependencyMissing, Package: name, Declared: len(names)}
		}
	}

	return Report{Verdict: VerdictUpToDate, Declared: len(names)}
}
