package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/nazupdate/internal/config"
	"github.com/danieljhkim/nazupdate/internal/engine"
	"github.com/danieljhkim/nazupdate/internal/notify"
)

// execute runs rootCmd with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		jsonOutput = false
		workDir = ""
		configFile = ""
		verbose = false
		assumeYes = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "nazupdate")
	assert.Contains(t, out, "Backups & Dependencies:")
	assert.Contains(t, out, "check-deps")
	assert.Contains(t, out, "--yes")
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() {
		rootCmd.Version = "dev"
		appVersion = "dev"
	})

	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestSetVersion_IgnoresEmpty(t *testing.T) {
	rootCmd.Version = "dev"
	SetVersion("")
	assert.Equal(t, "dev", rootCmd.Version)
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	_, err := execute(t, "invalid-command")
	assert.Error(t, err)
}

func TestRootCommand_Subcommands(t *testing.T) {
	expected := []string{"backups", "restore", "check-deps", "version", "completion"}
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, names[name], "missing subcommand %q", name)
	}
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "nazupdate")
}

func TestRestore_RequiresBackupArgument(t *testing.T) {
	_, err := execute(t, "restore")
	assert.Error(t, err)
}

func TestCheckDeps_JSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"dependencies":{"axios":"^1.0.0"}}`), 0644))

	out, err := execute(t, "check-deps", "--json", "--dir", dir)
	require.NoError(t, err)

	var got struct {
		Verdict      string `json:"verdict"`
		NeedsInstall bool   `json:"needs_install"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "install-dir-missing", got.Verdict)
	assert.True(t, got.NeedsInstall)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "axios"), 0755))
	out, err = execute(t, "check-deps", "--json", "--dir", dir)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "up-to-date", got.Verdict)
	assert.False(t, got.NeedsInstall)
}

func TestBackups_JSONEmpty(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "backups", "--json", "--dir", dir)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestCountdownGate(t *testing.T) {
	paths := config.Paths{Root: "/bot", Backup: "/bot/backup_x"}

	t.Run("zero duration confirms immediately", func(t *testing.T) {
		assert.NoError(t, countdownGate(0).Confirm(context.Background(), paths))
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := countdownGate(time.Minute).Confirm(ctx, paths)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "cancelled at the gate", err: fmt.Errorf("%w: %w", engine.ErrCancelled, context.Canceled), want: 0},
		{name: "interrupted", err: context.Canceled, want: 0},
		{name: "failed update", err: engine.ErrFetch, want: 1},
		{name: "other error", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestNewUpdateOutput(t *testing.T) {
	out := newUpdateOutput(nil, engine.ErrLocked)
	assert.Equal(t, engine.ErrLocked.Error(), out.Error)
	assert.Empty(t, out.ID)

	res := &engine.Result{Attempt: engine.Attempt{ID: "abc", State: engine.StateDone}}
	out = newUpdateOutput(res, nil)
	assert.Equal(t, "abc", out.ID)
	assert.Equal(t, string(engine.StateDone), out.State)
	assert.Empty(t, out.Recovery)
	assert.Empty(t, out.Error)
}

func TestUpdate_JSONOutputIsParseableOnFailure(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NAZUPDATE_GIT_BINARY", "nazupdate-no-such-git")

	// Console printers and the JSON document share one stream, as they
	// would on a real stdout.
	var out bytes.Buffer
	prev := color.Output
	color.Output = &out
	t.Cleanup(func() { color.Output = prev })

	t.Cleanup(func() {
		jsonOutput = false
		workDir = ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	rootCmd.SetArgs([]string{"--json", "--dir", dir})
	rootCmd.SetOut(&out)
	err := rootCmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, engine.ErrPrereqMissing)

	var got updateOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got), "stdout: %s", out.String())
	assert.Equal(t, string(engine.StateFailed), got.State)
	assert.Contains(t, got.Error, "nazupdate-no-such-git")
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantPrint bool
	}{
		{name: "nil", err: nil},
		{name: "cancelled", err: engine.ErrCancelled},
		{name: "failed update already reported", err: fmt.Errorf("run: %w", &engine.PhaseError{Phase: engine.StateBackedUp, Kind: engine.ErrFetch, Err: errors.New("exit 128")})},
		{name: "plain error", err: errors.New("config read failed"), wantPrint: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)
			if tt.wantPrint {
				assert.Contains(t, buf.String(), tt.err.Error())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestNewNotifier_SilentForJSON(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })

	jsonOutput = true
	assert.Equal(t, notify.Discard, newNotifier())

	jsonOutput = false
	assert.IsType(t, consoleNotifier{}, newNotifier())
}
