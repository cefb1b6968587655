package cli

import (
	"github.com/spf13/cobra"

	"github.com/danieljhkim/nazupdate/internal/notify"
)

var checkDepsCmd = &cobra.Command{
	Use:   "check-deps",
	Short: "Report whether dependencies need to be reinstalled",
	Long: `Compare package.json with node_modules and report whether the install
command needs to run. Nothing is modified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, cfg, err := newUpdater(notify.Discard, nil)
		if err != nil {
			return err
		}

		report := upd.CheckDeps()
		if jsonOutput {
			out := map[string]any{
				"verdict":       report.Verdict,
				"needs_install": report.NeedsInstall(),
			}
			if report.Package != "" {
				out["package"] = report.Package
			}
			if report.Err != nil {
				out["error"] = report.Err.Error()
			}
			return outputJSON(cmd.OutOrStdout(), out)
		}

		if report.NeedsInstall() {
			PrintWarning(report.String())
			PrintInfo("Install with: " + joinCommand(cfg.InstallCommand))
			return nil
		}
		PrintSuccess(report.String())
		return nil
	},
}
