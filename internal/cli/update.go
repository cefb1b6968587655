package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/nazupdate/internal/config"
	"github.com/danieljhkim/nazupdate/internal/engine"
)

var assumeYes bool

// countdownGate gives the user a few seconds to press Ctrl+C before the
// update starts.
func countdownGate(d time.Duration) engine.Gate {
	return engine.GateFunc(func(ctx context.Context, paths config.Paths) error {
		if d <= 0 {
			return nil
		}
		PrintWarning("The bot's code will be replaced. Your data is backed up first.")
		PrintLabelValue("Directory", paths.Root)
		PrintLabelValue("Backup", paths.Backup)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for left := int(d.Round(time.Second) / time.Second); left > 0; left-- {
			fmt.Printf("\rStarting in %d seconds... (Ctrl+C to cancel) ", left)
			select {
			case <-ctx.Done():
				fmt.Println()
				return ctx.Err()
			case <-ticker.C:
			}
		}
		fmt.Println()
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	n := newNotifier()

	gateFor := func(cfg *config.Config) engine.Gate {
		if assumeYes || jsonOutput {
			return engine.AutoConfirm
		}
		return countdownGate(cfg.Countdown)
	}

	upd, cfg, err := newUpdater(n, gateFor)
	if err != nil {
		return err
	}

	if !jsonOutput {
		PrintSection("Nazuna updater")
		PrintLabelValue("Repository", cfg.RepoURL)
		if cfg.Source != "" {
			PrintLabelValue("Config", cfg.Source)
		}
	}

	res, err := upd.Run(cmd.Context())
	if jsonOutput {
		if jerr := outputJSON(cmd.OutOrStdout(), newUpdateOutput(res, err)); jerr != nil {
			return jerr
		}
		return err
	}

	if errors.Is(err, engine.ErrCancelled) {
		PrintWarning("Update cancelled, nothing was changed")
		return err
	}
	if err != nil {
		PrintError(fmt.Sprintf("Update failed: %v", err))
		return err
	}

	PrintSection("Summary")
	PrintLabelValue("Version", res.Checkout.ShortCommit())
	if res.Total > 0 {
		PrintLabelValue("Commits", fmt.Sprintf("%d", res.Total))
	}
	PrintLabelValue("Dependencies", res.Deps.String())
	PrintLabelValue("Restored", PrintCount(len(res.Restored), "path", "paths"))
	return nil
}

// updateOutput is the --json shape of an attempt.
type updateOutput struct {
	ID           string   `json:"id"`
	State        string   `json:"state"`
	Commit       string   `json:"commit,omitempty"`
	Verdict      string   `json:"dependencies,omitempty"`
	Installed    bool     `json:"installed"`
	Restored     []string `json:"restored,omitempty"`
	Total        int      `json:"total,omitempty"`
	Recovery     string   `json:"recovery,omitempty"`
	Backup       string   `json:"backup,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func newUpdateOutput(res *engine.Result, err error) updateOutput {
	out := updateOutput{}
	if res != nil {
		out.ID = res.Attempt.ID
		out.State = string(res.Attempt.State)
		out.Commit = res.Checkout.Commit
		out.Verdict = string(res.Deps.Verdict)
		out.Installed = res.Installed
		out.Restored = res.Restored
		out.Total = res.Total
		out.Instructions = res.Instructions
		if err != nil {
			out.Recovery = string(res.Recovery)
			if res.Attempt.BackupCreated {
				out.Backup = res.Attempt.Paths.Backup
			}
		}
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
