// Package inventory declares which paths of a bot installation are
// preserved state and which are replaceable code.
//
// The snapshot manager and the restorer both iterate Inventory.Paths, so a
// path that is backed up always has a matching restore rule.
package inventory

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/nazupdate/internal/fsops"
)

// Kind distinguishes file and directory state paths.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// StatePath is a path preserved across updates.
type StatePath struct {
	// RelPath is slash-separated and relative to the working root.
	RelPath string

	Kind Kind

	// Required paths must be present in a snapshot at restore time.
	Required bool

	// Crucial paths make a snapshot usable; at least one must be captured.
	Crucial bool

	// Marker, when set, must appear in the backed-up copy of the file.
	Marker string
}

// Native returns RelPath in OS form.
func (p StatePath) Native() string {
	return filepath.FromSlash(p.RelPath)
}

// Markers are the customisation signatures expected in the two
// hand-edited script files.
type Markers struct {
	Update string
	Index  string
}

// DefaultMarkers are the signatures written by the bot's maintainers.
var DefaultMarkers = Markers{
	Update: "// --- MINHA VERSÃO PERSONALIZADA UPDATE ---",
	Index:  "// --- MINHA VERSÃO PERSONALIZADA INDEX ---",
}

// Inventory is the full layout contract of an installation.
type Inventory struct {
	// Paths is the preserved state, in snapshot order.
	Paths []StatePath

	// Skeleton directories are created in the snapshot and in the working
	// tree before copying state into them.
	Skeleton []string

	// Artifacts are generated or version-control paths always removed
	// from the working tree before the overlay.
	Artifacts []string

	// InstallArtifacts are removed only when a reinstall is already needed.
	InstallArtifacts []string

	// Stale are the state paths cleared before the overlay so the restore
	// does not merge with pre-update survivors.
	Stale []string

	// StagingDiscard lists files dropped from a fresh checkout before it
	// is overlaid.
	StagingDiscard []string

	// Manifest is the dependency manifest; InstallDir holds installed packages.
	Manifest   string
	InstallDir string
}

const (
	Database     = "dados/database"
	Media        = "dados/midias"
	Config       = "dados/src/config.json"
	ScriptsDir   = "dados/src/.scripts"
	UpdateScript = "dados/src/.scripts/update.js"
	IndexScript  = "dados/src/index.js"
	Manifest     = "package.json"
	LockFile     = "package-lock.json"
	InstallDir   = "node_modules"
	Readme       = "README.md"
	VersionLog   = "dados/database/updateSave.json"
)

// Default returns the fixed inventory of a bot installation.
func Default(markers Markers) Inventory {
	return Inventory{
		Paths: []StatePath{
			{RelPath: Database, Kind: KindDir, Crucial: true},
			{RelPath: Config, Kind: KindFile, Crucial: true},
			{RelPath: UpdateScript, Kind: KindFile, Marker: markers.Update},
			{RelPath: IndexScript, Kind: KindFile, Marker: markers.Index},
			{RelPath: Manifest, Kind: KindFile},
			{RelPath: Media, Kind: KindDir},
		},
		Skeleton:         []string{Database, ScriptsDir, Media},
		Artifacts:        []string{".git", ".github", ".npm", Readme},
		InstallArtifacts: []string{InstallDir, LockFile},
		Stale:            []string{Config, ScriptsDir, IndexScript},
		StagingDiscard:   []string{Readme},
		Manifest:         Manifest,
		InstallDir:       InstallDir,
	}
}

// Lookup returns the state path declared at rel.
func (inv Inventory) Lookup(rel string) (StatePath, bool) {
	for _, p := range inv.Paths {
		if p.RelPath == rel {
			return p, true
		}
	}
	return StatePath{}, false
}

// Crucial returns the paths of which at least one must be captured.
func (inv Inventory) Crucial() []StatePath {
	var out []StatePath
	for _, p := range inv.Paths {
		if p.Crucial {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that every declared path is a safe relative path, that
// state paths are unique, and that every stale path is covered by a state
// path (or is a parent of one) so clearing it never destroys unsaved state.
func (inv Inventory) Validate() error {
	seen := make(map[string]bool, len(inv.Paths))
	hasCrucial := false
	for _, p := range inv.Paths {
		if err := fsops.ValidateRelPath(p.RelPath); err != nil {
			return fmt.Errorf("state path: %w", err)
		}
		if p.Kind != KindFile && p.Kind != KindDir {
			return fmt.Errorf("state path %q: unknown kind %q", p.RelPath, p.Kind)
		}
		if seen[p.RelPath] {
			return fmt.Errorf("state path %q declared twice", p.RelPath)
		}
		seen[p.RelPath] = true
		hasCrucial = hasCrucial || p.Crucial
	}
	if !hasCrucial {
		return fmt.Errorf("inventory declares no crucial state path")
	}

	groups := [][]string{inv.Skeleton, inv.Artifacts, inv.InstallArtifacts, inv.Stale, inv.StagingDiscard}
	for _, group := range groups {
		for _, rel := range group {
			if err := fsops.ValidateRelPath(rel); err != nil {
				return err
			}
		}
	}

	for _, rel := range inv.Stale {
		if !inv.coversStale(rel) {
			return fmt.Errorf("stale path %q is not backed by any state path", rel)
		}
	}

	if _, ok := inv.Lookup(inv.Manifest); !ok {
		return fmt.Errorf("manifest %q must be a state path", inv.Manifest)
	}
	return nil
}

func (inv Inventory) coversStale(rel string) bool {
	if _, ok := inv.Lookup(rel); ok {
		return true
	}
	for _, p := range inv.Paths {
		if filepath.Dir(filepath.FromSlash(p.RelPath)) == filepath.FromSlash(rel) {
			return true
		}
	}
	return false
}
