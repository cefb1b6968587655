package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Paths are the filesystem locations of one update attempt. They are built
// once from the attempt's start time and threaded into every component.
type Paths struct {
	// Root is the working tree (the installed bot).
	Root string

	// Backup is this attempt's snapshot root.
	Backup string

	// Staging receives the fresh checkout.
	Staging string

	// Lock guards the working tree against concurrent updaters.
	Lock string
}

// Paths derives the attempt paths for a run started at now.
func (c *Config) Paths(now time.Time) Paths {
	return Paths{
		Root:    c.Root,
		Backup:  filepath.Join(c.Root, BackupName(c.BackupPrefix, now)),
		Staging: filepath.Join(c.Root, c.StagingDir),
		Lock:    filepath.Join(c.Root, c.LockFile),
	}
}

var stampReplacer = strings.NewReplacer(":", "_", ".", "_", "T", "_")

// BackupName returns "<prefix><UTC ISO-8601 time>" with ':', '.' and 'T'
// replaced by '_', e.g. backup_2025-03-09_14_05_07_123Z.
func BackupName(prefix string, t time.Time) string {
	return prefix + stampReplacer.Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// BackupGlob matches snapshot roots created with prefix, keyed on the date
// part of the name.
func BackupGlob(prefix string) string {
	return prefix + "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]_*"
}
