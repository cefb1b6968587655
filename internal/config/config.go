// Package config loads updater settings.
//
// Every setting has a default reproducing the bot's fixed update procedure.
// Defaults can be overridden from an optional .nazupdate.yaml in the working
// root (or an explicit --config file) and from NAZUPDATE_* environment
// variables, e.g. NAZUPDATE_REPO_URL or NAZUPDATE_MARKERS_INDEX.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danieljhkim/nazupdate/internal/fsops"
	"github.com/danieljhkim/nazupdate/internal/inventory"
)

const (
	DefaultRepoURL       = "https://github.com/hiudyy/nazuna.git"
	DefaultCommitsAPIURL = "https://api.github.com/repos/hiudyy/nazuna/commits"
	DefaultStagingDir    = "temp_nazuna"
	DefaultBackupPrefix  = "backup_"
	DefaultLockFile      = ".nazupdate.lock"
	DefaultCountdown     = 5 * time.Second

	// DefaultMinFreeBytes is the headroom required on top of the state size
	// before a snapshot is taken.
	DefaultMinFreeBytes = 200 << 20

	configName = ".nazupdate"
	envPrefix  = "NAZUPDATE"
)

// DefaultInstallCommand reinstalls dependencies from the restored manifest.
var DefaultInstallCommand = []string{"npm", "run", "config:install"}

// Config holds the settings of an update run.
type Config struct {
	// Root is the working tree; all other paths are relative to it.
	Root string

	RepoURL        string
	CommitsAPIURL  string
	StagingDir     string
	BackupPrefix   string
	LockFile       string
	GitBinary      string
	InstallCommand []string
	Countdown      time.Duration
	MinFreeBytes   uint64
	Markers        inventory.Markers

	// Source is the config file that was read, empty when none was found.
	Source string
}

// PackageManager is the executable of the install command.
func (c *Config) PackageManager() string {
	if len(c.InstallCommand) == 0 {
		return ""
	}
	return c.InstallCommand[0]
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("repo_url", DefaultRepoURL)
	v.SetDefault("commits_api_url", DefaultCommitsAPIURL)
	v.SetDefault("staging_dir", DefaultStagingDir)
	v.SetDefault("backup_prefix", DefaultBackupPrefix)
	v.SetDefault("lock_file", DefaultLockFile)
	v.SetDefault("git_binary", "git")
	v.SetDefault("install_command", DefaultInstallCommand)
	v.SetDefault("countdown", DefaultCountdown)
	v.SetDefault("min_free_bytes", DefaultMinFreeBytes)
	v.SetDefault("markers.update", inventory.DefaultMarkers.Update)
	v.SetDefault("markers.index", inventory.DefaultMarkers.Index)
}

// Load reads settings for the working tree at root. configFile, when set,
// must exist; otherwise root/.nazupdate.{yaml,yml,json,toml} is optional.
func Load(root, configFile string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working root: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(absRoot)
		v.SetConfigName(configName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || (!errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Root:           absRoot,
		RepoURL:        v.GetString("repo_url"),
		CommitsAPIURL:  v.GetString("commits_api_url"),
		StagingDir:     v.GetString("staging_dir"),
		BackupPrefix:   v.GetString("backup_prefix"),
		LockFile:       v.GetString("lock_file"),
		GitBinary:      v.GetString("git_binary"),
		InstallCommand: v.GetStringSlice("install_command"),
		Countdown:      v.GetDuration("countdown"),
		MinFreeBytes:   v.GetUint64("min_free_bytes"),
		Markers: inventory.Markers{
			Update: v.GetString("markers.update"),
			Index:  v.GetString("markers.index"),
		},
		Source: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would let an attempt escape the working
// root or run without a fetch source.
func (c *Config) Validate() error {
	if c.RepoURL == "" {
		return fmt.Errorf("repo_url must not be empty")
	}
	if c.GitBinary == "" {
		return fmt.Errorf("git_binary must not be empty")
	}
	if len(c.InstallCommand) == 0 {
		return fmt.Errorf("install_command must not be empty")
	}
	if c.Countdown < 0 {
		return fmt.Errorf("countdown must not be negative")
	}
	if c.BackupPrefix == "" || strings.ContainsAny(c.BackupPrefix, `/\`) {
		return fmt.Errorf("backup_prefix must be a plain name prefix, got %q", c.BackupPrefix)
	}
	for key, name := range map[string]string{"staging_dir": c.StagingDir, "lock_file": c.LockFile} {
		if err := fsops.ValidateRelPath(name); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%s must be a direct child of the working root, got %q", key, name)
		}
	}
	if strings.HasPrefix(c.StagingDir, c.BackupPrefix) {
		return fmt.Errorf("staging_dir %q would be swept as an old backup", c.StagingDir)
	}
	return nil
}
